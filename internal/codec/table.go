// Package codec maps codec names to display information.
package codec

import (
	"strings"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/util"
)

type Info struct {
	Name        string
	Description string
	BaseType    adsp.BaseType
}

// Table is an immutable, case-insensitive codec lookup. Build it once with
// NewTable and pass it to whoever needs it.
type Table struct {
	byName map[string]Info
}

func NewTable(entries []Info) *Table {
	t := &Table{byName: make(map[string]Info, len(entries))}
	for _, e := range entries {
		t.byName[strings.ToLower(e.Name)] = e
	}
	return t
}

// DefaultTable knows the codecs the host commonly sees.
func DefaultTable() *Table {
	return NewTable([]Info{
		{Name: "ac3", Description: "Dolby Digital", BaseType: adsp.BaseTypeAC3},
		{Name: "eac3", Description: "Dolby Digital Plus", BaseType: adsp.BaseTypeEAC3},
		{Name: "truehd", Description: "Dolby TrueHD", BaseType: adsp.BaseTypeTrueHD},
		{Name: "dca", Description: "DTS", BaseType: adsp.BaseTypeDTS},
		{Name: "dtshd_ma", Description: "DTS-HD Master Audio", BaseType: adsp.BaseTypeDTSHD},
		{Name: "dtshd_hra", Description: "DTS-HD High Resolution Audio", BaseType: adsp.BaseTypeDTSHD},
		{Name: "aac", Description: "Advanced Audio Coding", BaseType: adsp.BaseTypeStereo},
		{Name: "mp3", Description: "MPEG-1 Audio Layer III", BaseType: adsp.BaseTypeStereo},
		{Name: "flac", Description: "Free Lossless Audio Codec", BaseType: adsp.BaseTypeMultichannel},
		{Name: "vorbis", Description: "Vorbis", BaseType: adsp.BaseTypeStereo},
		{Name: "opus", Description: "Opus", BaseType: adsp.BaseTypeStereo},
		{Name: "speex", Description: "Speex", BaseType: adsp.BaseTypeMono},
		{Name: "pcm_s16le", Description: "PCM 16 bit", BaseType: adsp.BaseTypeMultichannel},
		{Name: "pcm_f32le", Description: "PCM 32 bit float", BaseType: adsp.BaseTypeMultichannel},
	})
}

func (t *Table) Lookup(name string) (Info, bool) {
	info, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return info, ok
}

// Names returns every known codec name, sorted.
func (t *Table) Names() []string {
	return util.SortedKeys(t.byName)
}
