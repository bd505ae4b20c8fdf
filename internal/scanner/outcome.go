package scanner

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// Reason classifies a transport failure.
type Reason string

const (
	ReasonTimeout    Reason = "timeout"
	ReasonConnection Reason = "connection"
	ReasonTLS        Reason = "tls"
	ReasonProtocol   Reason = "protocol"
	ReasonCanceled   Reason = "canceled"
)

// Failure is a probe that produced no HTTP response.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Outcome is the result of probing one path. Exactly one of Failure or a
// response (Status > 0) is set.
type Outcome struct {
	Path      string
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	Duration  time.Duration
	UserAgent string
	Failure   *Failure
}

// Triage returns the fields the triage table matches on.
func (o Outcome) Triage() triage.Outcome {
	return triage.Outcome{
		Status:  o.Status,
		Failed:  o.Failure != nil,
		HasBody: len(o.Body) > 0,
	}
}

// Result is what a coordinator reports for each processed path.
type Result struct {
	Outcome     Outcome
	Rule        string
	Disposition triage.Disposition
	Findings    []detect.Finding
	Title       string
}

// classify maps a transport error to a failure reason.
func classify(ctx context.Context, err error) *Failure {
	f := &Failure{Err: err}

	var (
		netErr      net.Error
		opErr       *net.OpError
		dnsErr      *net.DNSError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		f.Reason = ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		f.Reason = ReasonTimeout
	case errors.As(err, &verifyErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr), errors.As(err, &alertErr):
		f.Reason = ReasonTLS
	case errors.As(err, &dnsErr), errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		f.Reason = ReasonConnection
	default:
		f.Reason = ReasonProtocol
	}
	return f
}
