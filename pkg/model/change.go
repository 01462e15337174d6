package model

import (
	"time"

	"github.com/glorpus-work/hoard/pkg/digest"
)

// IndicatorKind names the source of a change indicator.
type IndicatorKind string

const (
	IndicatorNone      IndicatorKind = ""
	IndicatorDigest    IndicatorKind = "digest"
	IndicatorToken     IndicatorKind = "token"
	IndicatorTimestamp IndicatorKind = "timestamp"
)

// ChangeIndicator is the remote value used to decide whether a downloaded file
// is stale.
type ChangeIndicator struct {
	Kind  IndicatorKind
	Value string
}

// Indicator picks the change indicator of a descriptor: the expected digest
// first, then the change token, then the asset's remote modification time.
func Indicator(d FileDescriptor, assetModified time.Time) ChangeIndicator {
	switch {
	case d.Digest != "":
		return ChangeIndicator{Kind: IndicatorDigest, Value: d.Digest}
	case d.ChangeToken != "":
		return ChangeIndicator{Kind: IndicatorToken, Value: d.ChangeToken}
	case !assetModified.IsZero():
		return ChangeIndicator{Kind: IndicatorTimestamp, Value: TimestampToken(assetModified)}
	default:
		return ChangeIndicator{}
	}
}

// Token returns the value to record as the file's change token after a
// successful download. Digest indicators are recorded through the digest itself.
func (c ChangeIndicator) Token() string {
	if c.Kind == IndicatorDigest {
		return ""
	}
	return c.Value
}

// Matches reports whether the downloaded file f is still current. A file with
// no digest never matches. With no indicator available a downloaded file is
// considered current.
func (c ChangeIndicator) Matches(f *File) bool {
	if f == nil || f.Digest == "" {
		return false
	}
	switch c.Kind {
	case IndicatorDigest:
		return digest.Equal(f.Digest, c.Value)
	case IndicatorToken, IndicatorTimestamp:
		return f.ChangeToken == c.Value
	default:
		return true
	}
}

// TimestampToken formats t as a change token.
func TimestampToken(t time.Time) string {
	return "ts:" + t.UTC().Format(time.RFC3339Nano)
}

