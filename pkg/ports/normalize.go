package ports

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// NormalizeRole canonicalizes role aliases found in records written by other
// tools ("ctrl", "host", "memory", ...).
func NormalizeRole(value string) Role {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "controller", "ctrl", "host":
		return RoleController
	case "dram", "memory", "mem":
		return RoleDRAM
	}
	return Role(strings.ToLower(strings.TrimSpace(value)))
}

// NormalizeNetType canonicalizes net type spellings; anything not
// recognizably differential is treated as single-ended.
func NormalizeNetType(value string) NetType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "diff", "differential":
		return NetDifferential
	}
	return NetSingle
}

// NormalizePolarity canonicalizes polarity spellings.
func NormalizePolarity(value string) Polarity {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return PolarityNone
	case "positive", "pos", "+", "p":
		return PolarityPositive
	case "negative", "neg", "-", "n":
		return PolarityNegative
	}
	return Polarity(strings.ToLower(strings.TrimSpace(value)))
}

var seqPrefixRe = regexp.MustCompile(`^\d+_(.*)$`)

// PrefixPortName replaces any existing numeric sequence prefix on name with
// the given sequence.
func PrefixPortName(name string, sequence int) string {
	base := strings.TrimSpace(name)
	if m := seqPrefixRe.FindStringSubmatch(base); m != nil {
		base = strings.TrimSpace(m[1])
	}
	if base == "" {
		return fmt.Sprintf("%d", sequence)
	}
	return fmt.Sprintf("%d_%s", sequence, base)
}

// Normalize canonicalizes field spellings and compacts the port sequence to
// 1..N in sequence order, re-prefixing port names accordingly.
func (r *Record) Normalize() error {
	if len(r.Ports) == 0 {
		return fmt.Errorf("record lists no ports")
	}
	for i := range r.Ports {
		p := &r.Ports[i]
		if p.Sequence == 0 {
			p.Sequence = i + 1
		}
		p.Role = NormalizeRole(string(p.Role))
		p.NetType = NormalizeNetType(string(p.NetType))
		p.Polarity = NormalizePolarity(string(p.Polarity))
	}
	sort.SliceStable(r.Ports, func(i, j int) bool {
		return r.Ports[i].Sequence < r.Ports[j].Sequence
	})
	for i := range r.Ports {
		r.Ports[i].Sequence = i + 1
		r.Ports[i].Name = PrefixPortName(r.Ports[i].Name, i+1)
	}
	return nil
}
