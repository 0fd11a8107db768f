// Package sizing computes the dehumidification load for a room, optionally
// with an indoor pool, in liters of condensate per day.
package sizing

import (
	"errors"
	"fmt"
	"math"
)

// Input validation errors.
var (
	ErrInvalidRoom        = errors.New("sizing: invalid room dimensions")
	ErrInvalidHumidity    = errors.New("sizing: invalid humidity")
	ErrInvalidTemperature = errors.New("sizing: invalid temperature")
	ErrInvalidPool        = errors.New("sizing: invalid pool dimensions")
)

const (
	// airChangesPerHour is the assumed infiltration rate for a closed
	// room without mechanical ventilation.
	airChangesPerHour = 0.5

	// airDensity in kg per cubic metre at indoor conditions.
	airDensity = 1.2

	// poolAirVelocity is the assumed air speed over the water surface in
	// metres per second. Indoor pools sit well below 0.2.
	poolAirVelocity = 0.15
)

// Input describes the space to dehumidify. Dimensions in metres,
// temperatures in degrees Celsius, humidity in percent relative humidity.
// Pool fields are optional; a zero PoolLength and PoolWidth means no pool.
type Input struct {
	RoomLength float64
	RoomWidth  float64
	RoomHeight float64

	AirTemp   float64
	CurrentRH float64
	TargetRH  float64

	PoolLength float64
	PoolWidth  float64
	WaterTemp  float64
}

// HasPool reports whether pool evaporation is part of the load.
func (in Input) HasPool() bool {
	return in.PoolLength > 0 || in.PoolWidth > 0
}

// Result is the computed load in liters per day.
type Result struct {
	RoomLitersPerDay  float64
	PoolLitersPerDay  float64
	TotalLitersPerDay float64
}

// Calculate validates the input and returns the dehumidification load.
// The room load covers infiltration air exchange between current and target
// humidity; the pool load adds surface evaporation against air held at the
// target humidity.
func Calculate(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	volume := in.RoomLength * in.RoomWidth * in.RoomHeight
	xCurrent := humidityRatio(in.AirTemp, in.CurrentRH)
	xTarget := humidityRatio(in.AirTemp, in.TargetRH)

	// kg of water removed per hour to hold the target against infiltration.
	roomKgPerHour := volume * airChangesPerHour * airDensity * (xCurrent - xTarget)
	res := Result{RoomLitersPerDay: roomKgPerHour * 24}

	if in.HasPool() {
		area := in.PoolLength * in.PoolWidth
		xSurface := humidityRatio(in.WaterTemp, 100)
		xAir := humidityRatio(in.AirTemp, in.TargetRH)
		// Evaporation coefficient in kg/(m2 h) per unit humidity ratio
		// difference, after the engineering correlation (25 + 19 v).
		coeff := 25 + 19*poolAirVelocity
		poolKgPerHour := area * coeff * math.Max(0, xSurface-xAir)
		res.PoolLitersPerDay = poolKgPerHour * 24
	}

	res.TotalLitersPerDay = res.RoomLitersPerDay + res.PoolLitersPerDay
	return res, nil
}

func validate(in Input) error {
	if in.RoomLength <= 0 || in.RoomWidth <= 0 || in.RoomHeight <= 0 {
		return fmt.Errorf("%w: %gx%gx%g", ErrInvalidRoom, in.RoomLength, in.RoomWidth, in.RoomHeight)
	}
	if in.CurrentRH <= 0 || in.CurrentRH > 100 {
		return fmt.Errorf("%w: current %g%%", ErrInvalidHumidity, in.CurrentRH)
	}
	if in.TargetRH <= 0 || in.TargetRH > 100 {
		return fmt.Errorf("%w: target %g%%", ErrInvalidHumidity, in.TargetRH)
	}
	if in.TargetRH >= in.CurrentRH {
		return fmt.Errorf("%w: target %g%% must be below current %g%%", ErrInvalidHumidity, in.TargetRH, in.CurrentRH)
	}
	if in.AirTemp < 1 || in.AirTemp > 45 {
		return fmt.Errorf("%w: air %g°C outside 1-45", ErrInvalidTemperature, in.AirTemp)
	}
	if in.HasPool() {
		if in.PoolLength <= 0 || in.PoolWidth <= 0 {
			return fmt.Errorf("%w: %gx%g", ErrInvalidPool, in.PoolLength, in.PoolWidth)
		}
		if in.WaterTemp < 1 || in.WaterTemp > 45 {
			return fmt.Errorf("%w: water %g°C outside 1-45", ErrInvalidTemperature, in.WaterTemp)
		}
	}
	return nil
}

// saturationPressure returns the water vapor saturation pressure in Pa at
// temperature t (°C), using the Magnus approximation.
func saturationPressure(t float64) float64 {
	return 610.94 * math.Exp(17.625*t/(t+243.04))
}

// humidityRatio returns kg of water vapor per kg of dry air at temperature
// t (°C) and relative humidity rh (%), at standard pressure.
func humidityRatio(t, rh float64) float64 {
	pv := saturationPressure(t) * rh / 100
	return 0.622 * pv / (101325 - pv)
}
