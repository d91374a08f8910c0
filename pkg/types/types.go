package types

import "fmt"

// SignerAddURIScheme is the deep link the companion app scans to approve a signer
const SignerAddURIScheme = "farcaster://signer-add"

// KeyPair is an Ed25519 signer key. PrivateKey is the 32 byte seed the public key was
// derived from; it never leaves the process.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Zero wipes the seed once the attempt that owns the key pair ends
func (kp *KeyPair) Zero() {
	if kp == nil {
		return
	}
	for i := range kp.PrivateKey {
		kp.PrivateKey[i] = 0
	}
}

// SignerRequest is the pending-approval record issued by the signer request API
type SignerRequest struct {
	Token string `json:"token"`
}

// QRPayload returns the URI the companion app scans to approve this request
func (sr *SignerRequest) QRPayload() string {
	return SignerAddPayload(sr.Token)
}

// SignerAddPayload formats the signer-add deep link for a request token
func SignerAddPayload(token string) string {
	return fmt.Sprintf("%s?token=%s", SignerAddURIScheme, token)
}

// SignerApproval is produced once the user approves the signer in the companion app
type SignerApproval struct {
	Fid                 uint64 `json:"fid"`
	Base64SignedMessage string `json:"base64SignedMessage"`
}

// SignerRequestCreateRequest is the body POSTed to the signer request API
type SignerRequestCreateRequest struct {
	PublicKey string `json:"publicKey"`
	Name      string `json:"name"`
}

// SignerRequestCreateResponse is the signer request API response envelope
type SignerRequestCreateResponse struct {
	Result *SignerRequestCreateResult `json:"result"`
}

type SignerRequestCreateResult struct {
	Token string `json:"token"`
}

// SignerRequestStatus is the signerRequest object returned while polling
type SignerRequestStatus struct {
	Token               string `json:"token,omitempty"`
	PublicKey           string `json:"publicKey,omitempty"`
	Fid                 uint64 `json:"fid,omitempty"`
	Base64SignedMessage string `json:"base64SignedMessage,omitempty"`
}

// SignerRequestStatusResponse is the approval-polling API response envelope
type SignerRequestStatusResponse struct {
	Result *SignerRequestStatusResult `json:"result"`
}

type SignerRequestStatusResult struct {
	SignerRequest *SignerRequestStatus `json:"signerRequest"`
}

// Approval extracts the approval from a polling response, or nil when the request is
// still pending
func (r *SignerRequestStatusResponse) Approval() *SignerApproval {
	if r == nil || r.Result == nil || r.Result.SignerRequest == nil {
		return nil
	}
	sr := r.Result.SignerRequest
	if sr.Base64SignedMessage == "" {
		return nil
	}
	return &SignerApproval{
		Fid:                 sr.Fid,
		Base64SignedMessage: sr.Base64SignedMessage,
	}
}
