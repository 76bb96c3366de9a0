package tet

// englishSymbols and englishProbabilities hold the letter distribution of
// English text over a–z and space.
var (
	englishSymbols = []rune("abcdefghijklmnopqrstuvwxyz ")

	englishProbabilities = []float64{
		0.06545420428810268, 0.012614349400134882, 0.022382079660795914, 0.032895839710101495, 0.10287480840814522,
		0.019870906945619955, 0.01628201251975626, 0.0498866519336527, 0.05679944220647908, 0.0009771967640664421,
		0.005621008826086285, 0.03324279082953061, 0.020306796250368523, 0.057236004874678816, 0.061720746945911634,
		0.015073764715016882, 0.0008384527300266635, 0.049980287430261394, 0.05327793252372975, 0.07532249847431097,
		0.022804128240333354, 0.007977317166161044, 0.017073508770571122, 0.0014120607927983009, 0.014305632773116854,
		0.0005138874382474097, 0.18325568938199557,
	}

	english = mustEnglish()
)

func mustEnglish() *Distribution[rune] {
	weights := make([]Weighted[rune], len(englishSymbols))
	for i, r := range englishSymbols {
		weights[i] = Weighted[rune]{Symbol: r, P: englishProbabilities[i]}
	}
	d, err := NewDistributionFromWeights(weights)
	if err != nil {
		panic(err)
	}
	return d
}

// English returns the built-in 27-symbol distribution (lower-case letters and
// space). The returned value is shared and must be treated as read-only,
// which its API already enforces.
func English() *Distribution[rune] {
	return english
}
