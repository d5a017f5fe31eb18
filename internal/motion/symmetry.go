package motion

import "math"

// SymmetryRatio compares the spread of a left and right channel. Both
// variances are floored at SymmetryFloor so a stationary limb neither divides
// by zero nor reads as perfectly symmetric. The result is in (0, 1].
func SymmetryRatio(leftVar, rightVar float64) float64 {
	return symmetryRatio(leftVar, rightVar, SymmetryFloor)
}

func symmetryRatio(leftVar, rightVar, floor float64) float64 {
	maxVar := math.Max(math.Max(leftVar, rightVar), floor)
	minVar := math.Max(math.Min(leftVar, rightVar), floor)
	return minVar / maxVar
}
