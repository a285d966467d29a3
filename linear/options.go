package linear

// Option は LinearRegression の設定関数
type Option func(*LinearRegression)

// WithAlpha はL2正則化の強さを設定する。0なら通常の最小二乗法。
func WithAlpha(alpha float64) Option {
	return func(lr *LinearRegression) {
		lr.Alpha = alpha
	}
}

// WithFitIntercept は切片を学習するかどうかを設定する
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}
