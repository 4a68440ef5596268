package proxy

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// TimestampFormat is the UTC ISO-8601 layout used in meta.timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// StripFields returns a copy of a JSON document without any member named in
// fields, at any depth. body is never modified. Invalid JSON and an empty
// field list return body unchanged.
func StripFields(body []byte, fields []string) []byte {
	if len(fields) == 0 || !gjson.ValidBytes(body) {
		return body
	}

	drop := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		drop[f] = struct{}{}
	}

	var buf bytes.Buffer
	buf.Grow(len(body))
	writeStripped(&buf, gjson.ParseBytes(body), drop)
	return buf.Bytes()
}

func writeStripped(buf *bytes.Buffer, v gjson.Result, drop map[string]struct{}) {
	switch {
	case v.IsObject():
		buf.WriteByte('{')
		first := true
		v.ForEach(func(key, value gjson.Result) bool {
			if _, ok := drop[key.Str]; ok {
				return true
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.WriteString(key.Raw)
			buf.WriteByte(':')
			writeStripped(buf, value, drop)
			return true
		})
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		first := true
		v.ForEach(func(_, value gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeStripped(buf, value, drop)
			return true
		})
		buf.WriteByte(']')
	case v.Raw == "":
		buf.WriteString("null")
	default:
		buf.WriteString(v.Raw)
	}
}

// payload is the part of an upstream body that survives enveloping.
type payload struct {
	data       gjson.Result
	pagination gjson.Result
	links      gjson.Result
}

// extractPayload finds data, pagination and links in an upstream body.
// A body that is already an envelope (has "success") keeps its members; a body
// shaped {data, pagination|links} is unwrapped; anything else is the data.
func extractPayload(body []byte) payload {
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return payload{data: doc}
	}

	if doc.Get("success").Exists() {
		p := payload{
			data:       doc.Get("data"),
			pagination: doc.Get("pagination"),
			links:      doc.Get("links"),
		}
		if !p.pagination.Exists() {
			p.pagination = doc.Get("meta.pagination")
		}
		return p
	}

	data := doc.Get("data")
	pagination := doc.Get("pagination")
	links := doc.Get("links")
	if data.Exists() && (pagination.Exists() || links.Exists()) {
		return payload{data: data, pagination: pagination, links: links}
	}
	return payload{data: doc}
}

type member struct {
	value gjson.Result
	path  string
}

// BuildEnvelope wraps a successful upstream JSON body for version.
//
//	v1:     {success, data}
//	v2 up:  {success, data, meta:{version, timestamp, pagination?}, links?}
func BuildEnvelope(body []byte, version string, now time.Time) ([]byte, error) {
	p := extractPayload(body)

	data := p.data.Raw
	if data == "" {
		data = "null"
	}
	out, err := sjson.SetRawBytes([]byte(`{"success":true}`), "data", []byte(data))
	if err != nil {
		return nil, fmt.Errorf("envelope data: %w", err)
	}

	if version == "v1" {
		return out, nil
	}

	meta := []byte(`{}`)
	if meta, err = sjson.SetBytes(meta, "version", version); err != nil {
		return nil, fmt.Errorf("envelope meta: %w", err)
	}
	if meta, err = sjson.SetBytes(meta, "timestamp", now.UTC().Format(TimestampFormat)); err != nil {
		return nil, fmt.Errorf("envelope meta: %w", err)
	}
	if out, err = sjson.SetRawBytes(out, "meta", meta); err != nil {
		return nil, fmt.Errorf("envelope meta: %w", err)
	}
	optional := []member{
		{path: "meta.pagination", value: p.pagination},
		{path: "links", value: p.links},
	}
	for _, m := range optional {
		if !m.value.Exists() {
			continue
		}
		if out, err = sjson.SetRawBytes(out, m.path, []byte(m.value.Raw)); err != nil {
			return nil, fmt.Errorf("envelope %s: %w", m.path, err)
		}
	}
	return out, nil
}
