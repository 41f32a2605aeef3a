package verify

import (
	"encoding/json"

	"github.com/TFMV/avs/internal/address"
)

// Decision is the outcome label reported to clients.
type Decision string

const (
	Success Decision = "Success"
	Failure Decision = "Failure"
)

// ResponseCode is reported with every decision. It carries no meaning yet.
const ResponseCode = 100

// NoRecommendationMsg marks a fuzzy lookup that produced no candidate.
const NoRecommendationMsg = "no recommendation for the address submitted"

// Outcome classifies a verification for logs and metrics.
type Outcome string

const (
	OutcomeExact     Outcome = "exact"
	OutcomeNearMatch Outcome = "near_match"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeError     Outcome = "error"
)

// NearMatch is the result of the fuzzy fallback. Address is nil when no
// candidate reached the similarity floor.
type NearMatch struct {
	Address    *address.Address
	RecordID   string
	Score      int
	Candidates int
}

// Result is the decision for one submitted address.
type Result struct {
	// Submitted is the address exactly as the client sent it.
	Submitted address.Address

	Verified     bool
	Decision     Decision
	ResponseCode int

	// Recommendation is the normalized matched record on an exact hit.
	Recommendation *address.Address
	MatchedID      string

	// NearMatch is set whenever the fuzzy fallback ran.
	NearMatch *NearMatch

	// Suppressed omits both recommendation payloads from the rendered body.
	Suppressed bool
}

// Outcome reports how the decision was reached.
func (r *Result) Outcome() Outcome {
	switch {
	case r.Verified:
		return OutcomeExact
	case r.NearMatch != nil && r.NearMatch.Address != nil:
		return OutcomeNearMatch
	default:
		return OutcomeNoMatch
	}
}

type envelope struct {
	Details details `json:"avsAddressDetails"`
}

type details struct {
	ResponseStatus  bool            `json:"responseStatus"`
	AddressVerified bool            `json:"addressVerified"`
	ResponseCode    int             `json:"avsResponseCode"`
	Decision        Decision        `json:"avsResponseDecision"`
	Address         address.Address `json:"address"`
	Recommended     *recommended    `json:"recommendedAddresses,omitempty"`
	NearMatch       any             `json:"nearMatchAddressRecommendation,omitempty"`
}

type recommended struct {
	Address *address.Address `json:"recommendedAddress"`
}

type noRecommendation struct {
	Msg string `json:"msg"`
}

// MarshalJSON renders the avsAddressDetails envelope.
func (r *Result) MarshalJSON() ([]byte, error) {
	d := details{
		ResponseStatus:  true,
		AddressVerified: r.Verified,
		ResponseCode:    r.ResponseCode,
		Decision:        r.Decision,
		Address:         r.Submitted,
	}

	if !r.Suppressed {
		switch {
		case r.Verified:
			d.Recommended = &recommended{Address: r.Recommendation}
		case r.NearMatch != nil && r.NearMatch.Address != nil:
			d.NearMatch = r.NearMatch.Address
		default:
			d.NearMatch = noRecommendation{Msg: NoRecommendationMsg}
		}
	}

	return json.Marshal(envelope{Details: d})
}
