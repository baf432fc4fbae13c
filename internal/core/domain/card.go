package domain

// CardNetwork is the detected card scheme.
type CardNetwork string

const (
	NetworkVisa       CardNetwork = "visa"
	NetworkMastercard CardNetwork = "mastercard"
	NetworkAmex       CardNetwork = "amex"
	NetworkDiscover   CardNetwork = "discover"
	NetworkUnknown    CardNetwork = "unknown"
)

// CardData is raw card input. It only lives for the duration of a request.
type CardData struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"` // MM/YY or MM/YYYY
	CVV            string `json:"cvv,omitempty"`
	CardholderName string `json:"cardholderName"`
}

// TokenizedCard is what the engine hands to a GatewayClient. CVV is supplied fresh
// for each authorization and never persisted.
type TokenizedCard struct {
	Token          string
	Network        CardNetwork
	Last4          string
	ExpiryMonth    int
	ExpiryYear     int
	CardholderName string
	CVV            string
}
