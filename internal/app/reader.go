package app

import (
	"context"
	"errors"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Reader pulls frames off the link and hands them to the decoder.
type Reader struct {
	link    ports.Link
	decoder *Decoder
	logger  log.Logger

	// OnLinkError is called once when the link fails; the loop then exits.
	OnLinkError func(err error)
}

// NewReader creates a read loop over link.
func NewReader(link ports.Link, decoder *Decoder, logger log.Logger) *Reader {
	return &Reader{link: link, decoder: decoder, logger: logger}
}

// Run reads until ctx is cancelled or the link fails.
// Frames are processed one at a time in arrival order.
func (r *Reader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.link.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrLinkClosed) {
				// Closed under us by a baud change or stop; keep polling
				// until the link comes back or ctx ends.
				if !r.link.IsOpen() {
					if !sleepCtx(ctx, DefaultIdleInterval) {
						return ctx.Err()
					}
					continue
				}
			}
			r.logger.Error("link read failed", log.Err(err))
			if r.OnLinkError != nil {
				r.OnLinkError(err)
			}
			return err
		}
		if line == "" {
			continue
		}
		r.decoder.Ingest(line)
	}
}
