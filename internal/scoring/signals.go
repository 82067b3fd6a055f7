package scoring

import (
	"math"
	"strings"
	"time"
)

const (
	preferredDomain = 1.0
	avoidedDomain   = 0.0
	neutralDomain   = 0.6
	unknownDomain   = 0.3

	missingTimestamp = 0.2
	staleFactor      = 0.3
	overLengthFloor  = 0.4
	shortLengthScale = 0.2
)

// DomainScore rates a normalized domain against the preferred and avoided
// lists. Preferred wins when a domain appears in both.
func DomainScore(domain string, prefer, avoid []string) float64 {
	if domain == "" {
		return unknownDomain
	}
	if contains(prefer, domain) {
		return preferredDomain
	}
	if contains(avoid, domain) {
		return avoidedDomain
	}
	return neutralDomain
}

func contains(list []string, domain string) bool {
	for _, d := range list {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return true
		}
	}
	return false
}

// RecencyScore decays exponentially with the given half-life in days.
// Items older than cutoffDays are further multiplied by 0.3.
func RecencyScore(ageDays, halfLifeDays, cutoffDays int) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	hl := halfLifeDays
	if hl < 1 {
		hl = 1
	}
	s := math.Pow(0.5, float64(ageDays)/float64(hl))
	if ageDays > cutoffDays {
		s *= staleFactor
	}
	return clamp01(s)
}

// RecencyAt scores ts relative to now. A nil or zero timestamp scores 0.2.
// Age is counted in whole days and never negative.
func RecencyAt(ts *time.Time, now time.Time, halfLifeDays, cutoffDays int) float64 {
	if ts == nil || ts.IsZero() {
		return missingTimestamp
	}
	days := int(math.Floor(now.Sub(*ts).Hours() / 24))
	return RecencyScore(days, halfLifeDays, cutoffDays)
}

// LengthScore prefers documents between minChars and maxChars.
// Short documents scale linearly up to 0.2; long ones decay towards 0.4.
func LengthScore(n, minChars, maxChars int) float64 {
	if n <= 0 {
		return 0
	}
	if n < minChars {
		return clamp01(shortLengthScale * float64(n) / float64(minChars))
	}
	if n <= maxChars {
		return 1
	}
	over := float64(n - maxChars)
	return clamp01(math.Max(overLengthFloor, 1/(1+over/100000)))
}

// Cosine returns the cosine similarity of a and b clamped to [0, 1].
// Mismatched or empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
