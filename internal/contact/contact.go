// Package contact resolves the consultation endpoint from a consultant's
// vCard.
package contact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/tartampluch/go-haid/internal/config"
)

// Consultant is the person broken-pattern cases are sent to.
type Consultant struct {
	Name  string
	Phone string // digits only, international form
}

// Endpoint returns the chat link for the consultant's phone.
func (c Consultant) Endpoint() string {
	return config.ConsultEndpointPrefix + c.Phone
}

// Loader reads consultant cards from a local path or an http(s) URL.
type Loader struct {
	Fetcher Fetcher
}

// NewLoader returns a Loader downloading remote cards with fetcher.
func NewLoader(fetcher Fetcher) *Loader {
	return &Loader{Fetcher: fetcher}
}

// Load opens source and decodes the first card that has a usable phone.
func (l *Loader) Load(ctx context.Context, source string) (Consultant, error) {
	rc, err := l.open(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return Consultant{}, ctx.Err()
		}
		return Consultant{}, fmt.Errorf("%s: %w", config.ErrConsultantLoad, err)
	}
	defer func() { _ = rc.Close() }()

	c, err := Decode(rc)
	if err != nil {
		return Consultant{}, err
	}

	slog.Info(config.MsgConsultantLoaded,
		config.LogKeyComponent, config.CompContact,
		config.LogKeyValue, c.Name,
	)
	return c, nil
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, config.SchemeHTTP+"://") || strings.HasPrefix(source, config.SchemeHTTPS+"://") {
		if l.Fetcher == nil {
			return nil, errors.New(config.ErrFetcherMissing)
		}
		return l.Fetcher.Fetch(ctx, source)
	}
	return os.Open(source)
}

// Decode reads cards from r until one carries a TEL with digits.
func Decode(r io.Reader) (Consultant, error) {
	dec := vcard.NewDecoder(r)
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return Consultant{}, errors.New(config.ErrVCardNoPhone)
		}
		if err != nil {
			return Consultant{}, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
		}

		for _, tel := range card[config.VCardTEL] {
			if phone := digits(tel.Value); phone != "" {
				return Consultant{Name: card.PreferredValue(config.VCardFN), Phone: phone}, nil
			}
		}
	}
}

// digits strips everything but digits, including a "tel:" scheme and "+".
func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
