package services

import (
	"context"
	"errors"
	"strings"

	"github.com/boardtrack/apiserver/types"
)

// Reserved status tokens produced by the printed PASS/FAIL barcodes.
const (
	PassToken = "__PASS__"
	FailToken = "__FAIL__"
)

// IntakeState is the position of an operator's scan intake in the
// two-step protocol.
type IntakeState int

const (
	// AwaitingBoard means the next token must be a board barcode.
	AwaitingBoard IntakeState = iota
	// AwaitingStatus means a board is pending and the next token must
	// be the PASS or FAIL sentinel.
	AwaitingStatus
)

func (s IntakeState) String() string {
	switch s {
	case AwaitingBoard:
		return "awaiting_board"
	case AwaitingStatus:
		return "awaiting_status"
	}
	return "unknown"
}

// ErrExpectedBoardBarcode is reported when a status token arrives while
// no board is pending.
var ErrExpectedBoardBarcode = errors.New("scan the board barcode first")

// ErrUnknownStatusToken is reported when the second token is neither
// the PASS nor the FAIL sentinel. The pending board is discarded.
var ErrUnknownStatusToken = errors.New("unrecognized status barcode, scan the board again")

// ScanSubmitter records a validated scan. Satisfied by *ScanService.
type ScanSubmitter interface {
	Record(ctx context.Context, sess types.Session, barcode string, status types.ScanStatus, orderID int, notes string) (types.Scan, error)
}

// ScanIntake turns a stream of raw scanner tokens into Record calls:
// first a board barcode, then a PASS/FAIL sentinel. One intake exists
// per operator session and is not safe for concurrent use; separate
// operators each get their own.
//
// The machine has no terminal state. After every submission attempt,
// successful or not, it returns to AwaitingBoard so the operator can
// immediately scan the next board.
type ScanIntake struct {
	recorder       ScanSubmitter
	session        types.Session
	state          IntakeState
	pendingBarcode string
}

func NewScanIntake(recorder ScanSubmitter, sess types.Session) *ScanIntake {
	return &ScanIntake{recorder: recorder, session: sess}
}

// State returns the current protocol position.
func (m *ScanIntake) State() IntakeState { return m.state }

// PendingBarcode returns the board barcode captured by the first step,
// or "" when no board is pending.
func (m *ScanIntake) PendingBarcode() string { return m.pendingBarcode }

// Offer feeds one raw token to the machine. Empty tokens are ignored.
// When the token completes the two-step sequence, the resulting scan is
// returned; otherwise the scan is nil. Domain errors from the recorder
// (duplicate barcode, unknown order, missing department) are passed
// through after the machine has reset, so a physical re-scan starts a
// fresh sequence.
func (m *ScanIntake) Offer(ctx context.Context, token string, orderID int, notes string) (*types.Scan, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	switch m.state {
	case AwaitingBoard:
		if token == PassToken || token == FailToken {
			return nil, ErrExpectedBoardBarcode
		}
		m.pendingBarcode = token
		m.state = AwaitingStatus
		return nil, nil

	case AwaitingStatus:
		var status types.ScanStatus
		switch token {
		case PassToken:
			status = types.ScanPass
		case FailToken:
			status = types.ScanFail
		default:
			m.Reset()
			return nil, ErrUnknownStatusToken
		}

		barcode := m.pendingBarcode
		m.Reset()

		scan, err := m.recorder.Record(ctx, m.session, barcode, status, orderID, notes)
		if err != nil {
			return nil, err
		}
		return &scan, nil
	}

	m.Reset()
	return nil, nil
}

// Reset cancels any pending board and returns to AwaitingBoard. Wired
// to the operator's explicit cancel action.
func (m *ScanIntake) Reset() {
	m.state = AwaitingBoard
	m.pendingBarcode = ""
}
