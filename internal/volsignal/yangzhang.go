package volsignal

import (
	"fmt"
	"math"

	"github.com/dmaas/ivcrush/internal/marketdata"
)

// YangZhang estimates annualized realized volatility over a trailing
// rolling window, combining overnight (open vs prior close), open-to-close,
// and high/low range components. Bars must be ordered oldest first; only
// the final windowed value is returned.
func YangZhang(bars []marketdata.Bar, window, tradingPeriods int) (float64, error) {
	if window < 2 {
		return 0, fmt.Errorf("window must be at least 2, got %d", window)
	}
	if len(bars) < window+1 {
		return 0, fmt.Errorf("need at least %d bars, got %d", window+1, len(bars))
	}

	n := len(bars)
	logCCSq := make([]float64, n)
	logOCSq := make([]float64, n)
	rs := make([]float64, n)

	for i := 1; i < n; i++ {
		b, prev := bars[i], bars[i-1]
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || prev.Close <= 0 {
			return 0, fmt.Errorf("non-positive price in bar %d", i)
		}

		logHO := math.Log(b.High / b.Open)
		logLO := math.Log(b.Low / b.Open)
		logCO := math.Log(b.Close / b.Open)

		logOC := math.Log(b.Open / prev.Close)
		logCC := math.Log(b.Close / prev.Close)

		logCCSq[i] = logCC * logCC
		logOCSq[i] = logOC * logOC
		rs[i] = logHO*(logHO-logCO) + logLO*(logLO-logCO)
	}

	// Sum the last full window. Index 0 has no prior close and never
	// participates because n >= window+1.
	var closeSum, openSum, rsSum float64
	for i := n - window; i < n; i++ {
		closeSum += logCCSq[i]
		openSum += logOCSq[i]
		rsSum += rs[i]
	}

	scale := 1.0 / float64(window-1)
	closeVol := closeSum * scale
	openVol := openSum * scale
	windowRS := rsSum * scale

	k := 0.34 / (1.34 + float64(window+1)/float64(window-1))
	variance := openVol + k*closeVol + (1-k)*windowRS
	if variance < 0 {
		variance = 0
	}

	return math.Sqrt(variance) * math.Sqrt(float64(tradingPeriods)), nil
}

// AverageVolume returns the mean traded volume over the final window bars.
func AverageVolume(bars []marketdata.Bar, window int) (float64, error) {
	if len(bars) < window {
		return 0, fmt.Errorf("need at least %d bars, got %d", window, len(bars))
	}

	var sum float64
	for _, b := range bars[len(bars)-window:] {
		sum += float64(b.Volume)
	}
	return sum / float64(window), nil
}
