package core

// payload.go builds the wire payloads for both channels from one validated
// record. Both shapes honour the same suppression decisions.

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// IDTypeSHA256Email tags a hashed email on the CAPI wire format.
const IDTypeSHA256Email = "SHA256_EMAIL"

// ErrNotAccepted is returned when a builder is handed a rejected record.
var ErrNotAccepted = errors.New("record was not accepted by validation")

// FlatPayload is the webhook body: every value is a string.
type FlatPayload map[string]string

// ConversionEvent is one element of a CAPI batch.
type ConversionEvent struct {
	Conversion           string           `json:"conversion"`
	ConversionHappenedAt int64            `json:"conversionHappenedAt"`
	ConversionValue      *ConversionValue `json:"conversionValue,omitempty"`
	User                 EventUser        `json:"user"`
}

// ConversionValue is the optional monetary value of an event.
type ConversionValue struct {
	CurrencyCode string `json:"currencyCode"`
	Amount       string `json:"amount"`
}

// EventUser identifies who converted.
type EventUser struct {
	UserIDs  []UserID  `json:"userIds"`
	UserInfo *UserInfo `json:"userInfo,omitempty"`
}

// UserID is a hashed identity.
type UserID struct {
	IDType  string `json:"idType"`
	IDValue string `json:"idValue"`
}

// UserInfo carries only the non-empty name and company fields.
type UserInfo struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Title       string `json:"title,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

func (u UserInfo) empty() bool {
	return u == UserInfo{}
}

// BuildResult is what a builder returns alongside the payload.
type BuildResult struct {
	Payload   any
	Timestamp ResolvedTimestamp
}

// BuildFlat produces the webhook shape.
func BuildFlat(rec RawRecord, vr ValidationResult, cfg RunConfiguration, now time.Time) (BuildResult, error) {
	if !vr.Accepted {
		return BuildResult{}, ErrNotAccepted
	}

	cur := EvaluateCurrency(rec)
	out := make(FlatPayload, rec.Len())

	for _, col := range rec.columns {
		v := strings.TrimSpace(rec.Get(col))

		switch GroupOf(col) {
		case GroupUserInfo:
			if !vr.IncludeUserInfo {
				continue
			}
		case GroupCurrency:
			continue // emitted below from the decision
		case GroupTimestamp:
			continue // emitted below from the policy
		}

		if v != "" {
			out[col] = v
		}
	}

	if cur.Include {
		out[FieldCurrencyCode] = cur.CurrencyCode
		out[FieldConversionValue] = cur.AmountString()
	}

	res := BuildResult{Payload: out}
	if cfg.UseConversionTime {
		res.Timestamp = ResolveTimestamp(rec, cfg, now)
		out[FieldConversionTime] = strconv.FormatInt(res.Timestamp.Millis, 10)
	} else if raw := strings.TrimSpace(rec.Get(FieldConversionTime)); raw != "" {
		out[FieldConversionTime] = raw
	}

	return res, nil
}

// BuildNested produces one CAPI conversion event.
func BuildNested(rec RawRecord, vr ValidationResult, cfg RunConfiguration, now time.Time) (BuildResult, error) {
	if !vr.Accepted {
		return BuildResult{}, ErrNotAccepted
	}

	ts := ResolveTimestamp(rec, cfg, now)
	ev := ConversionEvent{
		Conversion:           cfg.ConversionURN(),
		ConversionHappenedAt: ts.Millis,
		User: EventUser{
			UserIDs: []UserID{{
				IDType:  IDTypeSHA256Email,
				IDValue: HashEmail(rec.Get(FieldEmail)),
			}},
		},
	}

	if cur := EvaluateCurrency(rec); cur.Include {
		ev.ConversionValue = &ConversionValue{
			CurrencyCode: cur.CurrencyCode,
			Amount:       cur.AmountString(),
		}
	}

	if vr.IncludeUserInfo {
		info := UserInfo{
			FirstName:   strings.TrimSpace(rec.Get(FieldFirstName)),
			LastName:    strings.TrimSpace(rec.Get(FieldLastName)),
			Title:       strings.TrimSpace(rec.Get(FieldTitle)),
			CompanyName: strings.TrimSpace(rec.Get(FieldCompanyName)),
			CountryCode: strings.TrimSpace(rec.Get(FieldCountryCode)),
		}
		if !info.empty() {
			ev.User.UserInfo = &info
		}
	}

	return BuildResult{Payload: ev, Timestamp: ts}, nil
}

// HashEmail returns the hex SHA-256 of the trimmed, lowercased address.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
