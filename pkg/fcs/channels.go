package fcs

import (
	"fmt"
	"strings"
)

// Naming selects which keyword supplies the externally visible channel names.
type Naming string

const (
	NamingPnS Naming = "$PnS" // display name, the default
	NamingPnN Naming = "$PnN" // short name, unique by the standard
)

func (n Naming) valid() bool { return n == NamingPnS || n == NamingPnN }

// Channel describes one parameter of the DATA segment.
type Channel struct {
	Index     int    // n in $Pn*
	Bits      int    // $PnB
	ByteWidth int    // Bits / 8
	ShortName string // $PnN
	LongName  string // $PnS
	Range     string // $PnR, kept verbatim
	Layout    Layout
}

// resolveChannels builds one Channel per index. Layouts are left zero; they
// are filled in once the TEXT segment has been validated.
func resolveChannels(m *Metadata) []Channel {
	idx := m.ChannelIndexes()
	chs := make([]Channel, 0, len(idx))
	for _, n := range idx {
		bits, _ := m.Bits(n)
		ch := Channel{
			Index:     n,
			Bits:      bits,
			ByteWidth: bits / 8,
		}
		ch.ShortName, _ = m.Get(fmt.Sprintf("$P%dN", n))
		ch.LongName, _ = m.Get(fmt.Sprintf("$P%dS", n))
		ch.Range, _ = m.Get(fmt.Sprintf("$P%dR", n))
		ch.ShortName = strings.TrimSpace(ch.ShortName)
		ch.LongName = strings.TrimSpace(ch.LongName)
		ch.Range = strings.TrimSpace(ch.Range)
		chs = append(chs, ch)
	}
	return chs
}

// resolveNames picks the channel name set. The preferred keyword is used
// unless it is empty for every channel or repeats a name; either way the whole
// set switches to the alternate keyword. A set that still repeats a name
// cannot label the event table and is an ErrMetadataType.
func resolveNames(chs []Channel, pref Naming) ([]string, *Warning, error) {
	short := make([]string, len(chs))
	long := make([]string, len(chs))
	for i, ch := range chs {
		short[i] = ch.ShortName
		long[i] = ch.LongName
	}
	names, alt := long, short
	if pref == NamingPnN {
		names, alt = short, long
	}

	var warn *Warning
	if allEmpty(names) {
		names = alt
	} else if dup, ok := firstDuplicate(names); ok {
		warn = &Warning{
			Kind:    WarnDuplicateChannelNames,
			Message: fmt.Sprintf("%s name %q is used by more than one channel; using %s names instead", pref, dup, alternate(pref)),
		}
		names = alt
	}
	if dup, ok := firstDuplicate(names); ok {
		return nil, nil, fmt.Errorf("%w: channel name %q is repeated in both $PnN and $PnS", ErrMetadataType, dup)
	}
	return names, warn, nil
}

func alternate(n Naming) Naming {
	if n == NamingPnN {
		return NamingPnS
	}
	return NamingPnN
}

func allEmpty(ss []string) bool {
	for _, s := range ss {
		if s != "" {
			return false
		}
	}
	return true
}

func firstDuplicate(ss []string) (string, bool) {
	seen := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			return s, true
		}
		seen[s] = struct{}{}
	}
	return "", false
}
