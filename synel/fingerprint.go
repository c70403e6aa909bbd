package synel

import (
	"context"
	"fmt"

	"github.com/arloliu/go-synel/codec"
)

// FingerprintStatus is the result code of a fingerprint unit operation.
type FingerprintStatus int

const (
	FingerprintOK FingerprintStatus = iota
	FingerprintMemoryFull
	FingerprintTemplateExists
	FingerprintTemplateNotFound
	FingerprintInvalidTemplate
	FingerprintUnitNotConnected
	FingerprintUnitBusy
	FingerprintUnitTimeout
	FingerprintInvalidUserID
	FingerprintBlockOutOfOrder
)

var fingerprintDescriptions = map[FingerprintStatus]string{
	FingerprintOK:               "success",
	FingerprintMemoryFull:       "template memory is full",
	FingerprintTemplateExists:   "template already exists for this user",
	FingerprintTemplateNotFound: "no template for this user",
	FingerprintInvalidTemplate:  "template data rejected by the unit",
	FingerprintUnitNotConnected: "fingerprint unit not connected",
	FingerprintUnitBusy:         "fingerprint unit busy",
	FingerprintUnitTimeout:      "fingerprint unit did not answer",
	FingerprintInvalidUserID:    "invalid user id",
	FingerprintBlockOutOfOrder:  "template block out of order",
}

// Description returns a human-readable description of the status.
func (s FingerprintStatus) Description() string {
	if d, ok := fingerprintDescriptions[s]; ok {
		return d
	}

	return "unknown fingerprint status"
}

func (s FingerprintStatus) String() string {
	return fmt.Sprintf("%d (%s)", int(s), s.Description())
}

// FingerprintError is returned when the fingerprint unit reports a non-zero status.
type FingerprintError struct {
	Op     string
	UserID int64
	Status FingerprintStatus
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("synel: fingerprint %s for user %d: %s (code %d)", e.Op, e.UserID, e.Status.Description(), int(e.Status))
}

// Fingerprint frame layout, data part of a 'V' request:
//
//	<op:1><user id:10><block index:2><block count:2><template nibbles>
//
// The terminal answers intermediate blocks with 't' and the final block, or
// any failing block, with 'v' followed by a two character status.
const (
	fingerprintOpUpload = 'U'
	fingerprintOpDelete = 'X'

	fingerprintUserIDWidth = 10
	fingerprintIndexWidth  = 2
	fingerprintStatusWidth = 2

	// FingerprintBlockSize is the number of encoded template characters per frame.
	FingerprintBlockSize = 256
)

// UploadFingerprint stores template for userID on the terminal's fingerprint unit.
//
// The template is nibble encoded and sent in blocks of FingerprintBlockSize
// characters. A non-zero status from the unit is returned as *FingerprintError.
func (t *Terminal) UploadFingerprint(ctx context.Context, userID int64, template []byte) error {
	if len(template) == 0 {
		return fmt.Errorf("%w: empty fingerprint template", ErrMalformed)
	}

	uid, err := codec.EncodeNumber(userID, fingerprintUserIDWidth)
	if err != nil {
		return fmt.Errorf("synel: fingerprint user id: %w", err)
	}

	encoded := codec.EncodeBytesToString(template)
	count := (len(encoded) + FingerprintBlockSize - 1) / FingerprintBlockSize

	countField, err := codec.EncodeNumber(int64(count), fingerprintIndexWidth)
	if err != nil {
		return fmt.Errorf("synel: fingerprint template too large: %w", err)
	}

	for i := 0; i < count; i++ {
		end := min((i+1)*FingerprintBlockSize, len(encoded))
		data := string(fingerprintOpUpload) + uid + codec.MustEncodeNumber(int64(i), fingerprintIndexWidth) +
			countField + encoded[i*FingerprintBlockSize:end]

		last := i == count-1
		valid := []string{string(RspLastCommand)}
		if !last {
			valid = append(valid, string(RspBlockReceived))
		}

		resp, err := t.exchange(ctx, CmdFingerprint, data, valid...)
		if err != nil {
			return err
		}

		if resp.Command == RspBlockReceived {
			continue
		}

		if err := fingerprintResult("upload", userID, resp); err != nil {
			return err
		}

		if !last {
			return fmt.Errorf("%w: fingerprint upload finished after block %d of %d", ErrUnexpectedResponse, i+1, count)
		}
	}

	return nil
}

// DeleteFingerprint removes the template of userID from the fingerprint unit.
func (t *Terminal) DeleteFingerprint(ctx context.Context, userID int64) error {
	uid, err := codec.EncodeNumber(userID, fingerprintUserIDWidth)
	if err != nil {
		return fmt.Errorf("synel: fingerprint user id: %w", err)
	}

	resp, err := t.exchange(ctx, CmdFingerprint, string(fingerprintOpDelete)+uid, string(RspLastCommand))
	if err != nil {
		return err
	}

	return fingerprintResult("delete", userID, resp)
}

func fingerprintResult(op string, userID int64, resp *Response) error {
	if len(resp.Data) < fingerprintStatusWidth {
		return fmt.Errorf("%w: fingerprint status %q", ErrMalformed, resp.Data)
	}

	code, err := codec.DecodeNumber(resp.Data[:fingerprintStatusWidth])
	if err != nil {
		return fmt.Errorf("%w: fingerprint status: %w", ErrMalformed, err)
	}

	if status := FingerprintStatus(code); status != FingerprintOK {
		return &FingerprintError{Op: op, UserID: userID, Status: status}
	}

	return nil
}
