package models

// AuthRecord is the record persisted under the auth key.
type AuthRecord struct {
	Phone           string `json:"phone"`
	CountryCode     string `json:"countryCode"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	Timestamp       int64  `json:"timestamp"`
}

// SendOTPRequest captures the phone step of sign-up.
type SendOTPRequest struct {
	Country  string `json:"country" binding:"required"`
	DialCode string `json:"dialCode" binding:"max=8"`
	Phone    string `json:"phone" binding:"required,number,min=6,max=15"`
}

// VerifyOTPRequest captures the OTP step of sign-up.
type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required,number,min=6,max=15"`
	OTP   string `json:"otp" binding:"required,len=6,number"`
}

// Country is one entry of the dial-code directory.
type Country struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Dial string `json:"dial"`
}
