package protocol

import "strings"

// Capabilities is a typed record of the Git protocol v1 capabilities
// negotiated between client and server. Unknown tokens encountered while
// parsing are ignored, per the spec's capability negotiation contract.
type Capabilities struct {
	MultiAck                 bool
	MultiAckDetailed         bool
	ThinPack                 bool
	SideBand                 bool
	SideBand64k              bool
	OfsDelta                 bool
	Shallow                  bool
	NoProgress               bool
	IncludeTag               bool
	ReportStatus             bool
	ReportStatusV2           bool
	DeleteRefs               bool
	Quiet                    bool
	Atomic                   bool
	PushOptions              bool
	AllowTipSha1InWant       bool
	AllowReachableSha1InWant bool
	Filter                   bool

	// Deepen holds any "deepen-*" tokens verbatim (e.g. "deepen-since", "deepen-not").
	// The core recognises and ignores these on push, per the protocol's non-goals.
	Deepen []string

	Agent        string
	ObjectFormat string
	PushCert     string
}

// booleanCapabilityTokens maps a wire token to the struct field it toggles.
var booleanCapabilityTokens = map[string]func(*Capabilities){
	"multi_ack":                    func(c *Capabilities) { c.MultiAck = true },
	"multi_ack_detailed":           func(c *Capabilities) { c.MultiAckDetailed = true },
	"thin-pack":                    func(c *Capabilities) { c.ThinPack = true },
	"side-band":                    func(c *Capabilities) { c.SideBand = true },
	"side-band-64k":                func(c *Capabilities) { c.SideBand64k = true },
	"ofs-delta":                    func(c *Capabilities) { c.OfsDelta = true },
	"shallow":                      func(c *Capabilities) { c.Shallow = true },
	"no-progress":                  func(c *Capabilities) { c.NoProgress = true },
	"include-tag":                  func(c *Capabilities) { c.IncludeTag = true },
	"report-status":                func(c *Capabilities) { c.ReportStatus = true },
	"report-status-v2":             func(c *Capabilities) { c.ReportStatusV2 = true },
	"delete-refs":                  func(c *Capabilities) { c.DeleteRefs = true },
	"quiet":                        func(c *Capabilities) { c.Quiet = true },
	"atomic":                       func(c *Capabilities) { c.Atomic = true },
	"push-options":                 func(c *Capabilities) { c.PushOptions = true },
	"allow-tip-sha1-in-want":       func(c *Capabilities) { c.AllowTipSha1InWant = true },
	"allow-reachable-sha1-in-want": func(c *Capabilities) { c.AllowReachableSha1InWant = true },
	"filter":                       func(c *Capabilities) { c.Filter = true },
}

// ParseCapabilities splits a space-separated capability token string into a
// Capabilities record. Tokens of the form "name=value" populate the
// corresponding string field; unrecognised tokens are silently ignored.
func ParseCapabilities(raw string) Capabilities {
	var caps Capabilities
	if raw == "" {
		return caps
	}

	for _, tok := range strings.Fields(raw) {
		name, value, hasValue := strings.Cut(tok, "=")

		if hasValue {
			switch name {
			case "agent":
				caps.Agent = value
			case "object-format":
				caps.ObjectFormat = value
			case "push-cert":
				caps.PushCert = value
			default:
				if strings.HasPrefix(name, "deepen-") {
					caps.Deepen = append(caps.Deepen, tok)
				}
				// Other unrecognised "name=value" tokens are ignored.
			}
			continue
		}

		if strings.HasPrefix(name, "deepen-") {
			caps.Deepen = append(caps.Deepen, tok)
			continue
		}

		if set, ok := booleanCapabilityTokens[name]; ok {
			set(&caps)
		}
		// Unknown boolean tokens are ignored.
	}

	return caps
}

// String renders the capability set back into its space-separated wire form.
// Field order is stable so repeated calls with an unchanged receiver produce
// byte-identical output.
func (c Capabilities) String() string {
	var tokens []string

	add := func(enabled bool, tok string) {
		if enabled {
			tokens = append(tokens, tok)
		}
	}

	add(c.MultiAck, "multi_ack")
	add(c.MultiAckDetailed, "multi_ack_detailed")
	add(c.ThinPack, "thin-pack")
	add(c.SideBand, "side-band")
	add(c.SideBand64k, "side-band-64k")
	add(c.OfsDelta, "ofs-delta")
	add(c.Shallow, "shallow")
	add(c.NoProgress, "no-progress")
	add(c.IncludeTag, "include-tag")
	add(c.ReportStatus, "report-status")
	add(c.ReportStatusV2, "report-status-v2")
	add(c.DeleteRefs, "delete-refs")
	add(c.Quiet, "quiet")
	add(c.Atomic, "atomic")
	add(c.PushOptions, "push-options")
	add(c.AllowTipSha1InWant, "allow-tip-sha1-in-want")
	add(c.AllowReachableSha1InWant, "allow-reachable-sha1-in-want")
	add(c.Filter, "filter")

	tokens = append(tokens, c.Deepen...)

	if c.Agent != "" {
		tokens = append(tokens, "agent="+c.Agent)
	}
	if c.ObjectFormat != "" {
		tokens = append(tokens, "object-format="+c.ObjectFormat)
	}
	if c.PushCert != "" {
		tokens = append(tokens, "push-cert="+c.PushCert)
	}

	return strings.Join(tokens, " ")
}

// Intersect returns the capabilities present in both the server's
// advertisement and the client's echoed subset. Client-first negotiation
// means the server must only act on this intersection. The client-side
// settings no-progress, quiet, agent, object-format and push-cert are taken
// from the client as sent; Deepen is not carried over.
func (c Capabilities) Intersect(client Capabilities) Capabilities {
	return Capabilities{
		MultiAck:                 c.MultiAck && client.MultiAck,
		MultiAckDetailed:         c.MultiAckDetailed && client.MultiAckDetailed,
		ThinPack:                 c.ThinPack && client.ThinPack,
		SideBand:                 c.SideBand && client.SideBand,
		SideBand64k:              c.SideBand64k && client.SideBand64k,
		OfsDelta:                 c.OfsDelta && client.OfsDelta,
		Shallow:                  c.Shallow && client.Shallow,
		NoProgress:               client.NoProgress,
		IncludeTag:               c.IncludeTag && client.IncludeTag,
		ReportStatus:             c.ReportStatus && client.ReportStatus,
		ReportStatusV2:           c.ReportStatusV2 && client.ReportStatusV2,
		DeleteRefs:               c.DeleteRefs && client.DeleteRefs,
		Quiet:                    client.Quiet,
		Atomic:                   c.Atomic && client.Atomic,
		PushOptions:              c.PushOptions && client.PushOptions,
		AllowTipSha1InWant:       c.AllowTipSha1InWant && client.AllowTipSha1InWant,
		AllowReachableSha1InWant: c.AllowReachableSha1InWant && client.AllowReachableSha1InWant,
		Filter:                   c.Filter && client.Filter,
		Agent:                    client.Agent,
		ObjectFormat:             client.ObjectFormat,
		PushCert:                 client.PushCert,
	}
}
