package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes loop quality over a recorded run.
type Summary struct {
	Samples   int     `json:"samples"`
	IAE       float64 `json:"iae"`
	ISE       float64 `json:"ise"`
	ITAE      float64 `json:"itae"`
	MeanError float64 `json:"mean_error"`
	StdError  float64 `json:"std_error"`
	PVMean    float64 `json:"pv_mean"`
	PVStd     float64 `json:"pv_std"`
	PVMin     float64 `json:"pv_min"`
	PVMax     float64 `json:"pv_max"`
	CVTravel  float64 `json:"cv_travel"`
	// Overshoot is the peak excursion of PV past the final setpoint,
	// relative to the setpoint change. Zero when SP never moved.
	Overshoot float64 `json:"overshoot"`
}

// Summarize scores aligned SP/PV/CV series sampled every dt seconds.
func Summarize(sp, pv, cv []float64, dt float64) Summary {
	n := min(len(sp), len(pv))
	if n == 0 {
		return Summary{}
	}
	sp, pv = sp[:n], pv[:n]

	e := make([]float64, n)
	floats.SubTo(e, sp, pv)

	var s Summary
	s.Samples = n
	s.MeanError, s.StdError = stat.MeanStdDev(e, nil)
	if n < 2 {
		s.StdError = 0
	}
	s.PVMean, s.PVStd = stat.MeanStdDev(pv, nil)
	if n < 2 {
		s.PVStd = 0
	}
	s.PVMin = floats.Min(pv)
	s.PVMax = floats.Max(pv)

	abs := make([]float64, n)
	for i, v := range e {
		abs[i] = math.Abs(v)
	}
	s.IAE = floats.Sum(abs) * dt
	s.ISE = floats.Dot(e, e) * dt
	for i, v := range abs {
		s.ITAE += float64(i+1) * dt * v * dt
	}

	if len(cv) > 1 {
		for i := 1; i < len(cv); i++ {
			s.CVTravel += math.Abs(cv[i] - cv[i-1])
		}
	}

	start, final := pv[0], sp[n-1]
	if step := final - start; step != 0 {
		if step > 0 {
			s.Overshoot = math.Max(0, (s.PVMax-final)/step)
		} else {
			s.Overshoot = math.Max(0, (final-s.PVMin)/-step)
		}
	}
	return s
}
