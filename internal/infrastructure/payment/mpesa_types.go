package payment

import "encoding/json"

// mpesaTokenResponse is the OAuth client credentials grant response.
// expires_in arrives as a quoted number.
type mpesaTokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// mpesaSTKPushRequest is the processrequest body
type mpesaSTKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// mpesaSTKPushResponse is the synchronous acknowledgement of a push
type mpesaSTKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// mpesaErrorResponse is returned with 4xx and 5xx statuses
type mpesaErrorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// mpesaCallbackEnvelope wraps the asynchronous STK result
type mpesaCallbackEnvelope struct {
	Body struct {
		STKCallback *mpesaSTKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type mpesaSTKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []mpesaCallbackItem `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

// mpesaCallbackItem carries one metadata value. Values are numbers or
// strings depending on the field.
type mpesaCallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}
