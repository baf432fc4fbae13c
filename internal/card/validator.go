// Package card validates raw card input: Luhn checksum, network, expiry and CVV.
package card

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"payment-lifecycle-engine/internal/core/domain"
)

var networkPatterns = []struct {
	network domain.CardNetwork
	pattern *regexp.Regexp
}{
	{domain.NetworkVisa, regexp.MustCompile(`^4(\d{12}|\d{15}|\d{18})$`)},
	{domain.NetworkMastercard, regexp.MustCompile(`^5[1-5]\d{14}$`)},
	{domain.NetworkAmex, regexp.MustCompile(`^3[47]\d{13}$`)},
	{domain.NetworkDiscover, regexp.MustCompile(`^(6011\d{12}|65\d{14})$`)},
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Normalize strips spaces and dashes from a card number.
func Normalize(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// LuhnValid validates a card number using the Luhn algorithm.
func LuhnValid(number string) bool {
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	isSecond := false

	// Process digits from right to left
	for i := len(number) - 1; i >= 0; i-- {
		digit, err := strconv.Atoi(string(number[i]))
		if err != nil {
			return false // Non-digit character found
		}

		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}

// DetectNetwork maps a card number onto its network by prefix and length.
func DetectNetwork(number string) domain.CardNetwork {
	for _, np := range networkPatterns {
		if np.pattern.MatchString(number) {
			return np.network
		}
	}
	return domain.NetworkUnknown
}

// ValidExpiry is true iff the last day of month/year is on or after the first
// day of the month containing now.
func ValidExpiry(month, year int, now time.Time) bool {
	return !domain.CardExpired(month, year, now)
}

// ParseExpiry accepts MM/YY or MM/YYYY.
func ParseExpiry(s string) (month, year int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || !digitsOnly.MatchString(parts[0]) || !digitsOnly.MatchString(parts[1]) {
		return 0, 0, fmt.Errorf("expiry %q is not MM/YY or MM/YYYY", s)
	}
	month, _ = strconv.Atoi(parts[0])
	year, _ = strconv.Atoi(parts[1])
	switch len(parts[1]) {
	case 2:
		year += 2000
	case 4:
	default:
		return 0, 0, fmt.Errorf("expiry year %q must have 2 or 4 digits", parts[1])
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("expiry month %d out of range", month)
	}
	return month, year, nil
}

// CVVLength is 4 for Amex and 3 for every other network.
func CVVLength(network domain.CardNetwork) int {
	if network == domain.NetworkAmex {
		return 4
	}
	return 3
}

// ValidCVV checks the CVV is all digits and of the network's exact length.
func ValidCVV(cvv string, network domain.CardNetwork) bool {
	return digitsOnly.MatchString(cvv) && len(cvv) == CVVLength(network)
}

// Result is the aggregate outcome of Validate.
type Result struct {
	OK          bool
	Errors      []string
	Code        domain.ResponseCode
	Network     domain.CardNetwork
	Last4       string
	BIN         string
	Number      string
	ExpiryMonth int
	ExpiryYear  int
}

// Err converts a failed result into a *domain.CardError.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &domain.CardError{Code: r.Code, Message: strings.Join(r.Errors, "; "), Details: r.Errors}
}

// Validator runs every card rule against input.
type Validator struct {
	now func() time.Time
}

// NewValidator builds a Validator. now may be nil to use time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate aggregates the Luhn, network, expiry and CVV rules. An empty CVV is
// accepted here; its absence is a risk factor, not a card error.
func (v *Validator) Validate(data domain.CardData) Result {
	number := Normalize(data.CardNumber)
	res := Result{Number: number, Network: DetectNetwork(number)}

	if !LuhnValid(number) {
		res.Errors = append(res.Errors, "card number failed validation")
		res.Code = domain.CodeInvalidCard
	}
	if len(number) >= 4 {
		res.Last4 = number[len(number)-4:]
	}
	if len(number) >= 6 {
		res.BIN = number[:6]
	}

	month, year, err := ParseExpiry(data.ExpiryDate)
	switch {
	case err != nil:
		res.Errors = append(res.Errors, err.Error())
		res.setCode(domain.CodeInvalidCard)
	case !ValidExpiry(month, year, v.now()):
		res.Errors = append(res.Errors, "card has expired")
		res.setCode(domain.CodeExpiredCard)
	default:
		res.ExpiryMonth, res.ExpiryYear = month, year
	}

	if data.CVV != "" && !ValidCVV(data.CVV, res.Network) {
		res.Errors = append(res.Errors, fmt.Sprintf("cvv must be %d digits", CVVLength(res.Network)))
		res.setCode(domain.CodeInvalidCVV)
	}

	res.OK = len(res.Errors) == 0
	if res.OK {
		res.Code = domain.CodeSuccess
	}
	return res
}

func (r *Result) setCode(code domain.ResponseCode) {
	if r.Code == "" {
		r.Code = code
	}
}
