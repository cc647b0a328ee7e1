// Package qrtoken classifies the opaque values scanned from credential QR
// codes.
//
// A QR code printed on a credential document encodes one of three things:
// the credential's registry UUID, the ledger transaction reference that
// anchors it ("0x" + hex), or a share-link identifier ("share_" prefix).
// The registry tries them in that order when resolving a scan.
package qrtoken

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Kind is the classification of a scanned token.
type Kind int

const (
	// KindUnknown — the token matches none of the known shapes.
	KindUnknown Kind = iota
	// KindCredentialID — a registry credential UUID.
	KindCredentialID
	// KindTxRef — a ledger transaction reference.
	KindTxRef
	// KindShareID — a share-link identifier.
	KindShareID
)

// ErrEmpty is returned when the scanned token is blank.
var ErrEmpty = errors.New("qrtoken: empty token")

// SharePrefix is the marker for share-link identifiers.
const SharePrefix = "share_"

// Classify inspects token and reports its kind. The token is trimmed of
// surrounding whitespace first; classification never touches the network.
func Classify(token string) (Kind, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return KindUnknown, "", ErrEmpty
	}

	if _, err := uuid.Parse(token); err == nil {
		return KindCredentialID, token, nil
	}

	if strings.HasPrefix(token, "0x") && len(token) > 2 {
		if _, err := hex.DecodeString(token[2:]); err == nil {
			return KindTxRef, token, nil
		}
	}

	if strings.HasPrefix(token, SharePrefix) && len(token) > len(SharePrefix) {
		return KindShareID, token, nil
	}

	return KindUnknown, token, nil
}
