package evolution

import "errors"

var (
	// ErrNotConnected means the operation requires a connected instance.
	// The user has to go through the QR flow first.
	ErrNotConnected = errors.New("whatsapp instance not connected")

	// ErrInstanceNotReady means the user has no instance row yet.
	ErrInstanceNotReady = errors.New("instance not created yet")

	// ErrInstanceCreateFailed means the gateway refused or failed the
	// create/connect sequence. Local status stays disconnected; the
	// operation is safe to retry.
	ErrInstanceCreateFailed = errors.New("failed to create gateway instance")

	// ErrAlreadyConnected rejects QR refreshes on a connected instance.
	ErrAlreadyConnected = errors.New("instance already connected")

	// ErrQRNotAvailable means the gateway produced neither a rendered QR
	// image nor a pairing code.
	ErrQRNotAvailable = errors.New("qr code not available")
)
