// Package extraction turns the workflow service's loosely shaped responses
// into the fixed daily-report record used by the clinic's accounting sheet.
package extraction

// Field keys, in the order the accounting sheet lists them.
const (
	KeyShahoCount         = "shaho_count"
	KeyShahoAmount        = "shaho_amount"
	KeyKokuhoCount        = "kokuho_count"
	KeyKokuhoAmount       = "kokuho_amount"
	KeyKoukiCount         = "kouki_count"
	KeyKoukiAmount        = "kouki_amount"
	KeyJihiCount          = "jihi_count"
	KeyJihiAmount         = "jihi_amount"
	KeyBushanNote         = "bushan_note"
	KeyBushanAmount       = "bushan_amount"
	KeyPreviousDifference = "previous_difference"
	KeyHokenNashiCount    = "hoken_nashi_count"
	KeyHokenNashiAmount   = "hoken_nashi_amount"
)

// FieldKeys lists every field key in sheet order.
var FieldKeys = []string{
	KeyShahoCount,
	KeyShahoAmount,
	KeyKokuhoCount,
	KeyKokuhoAmount,
	KeyKoukiCount,
	KeyKoukiAmount,
	KeyJihiCount,
	KeyJihiAmount,
	KeyBushanNote,
	KeyBushanAmount,
	KeyPreviousDifference,
	KeyHokenNashiCount,
	KeyHokenNashiAmount,
}

// Fields is the flat daily report. Every value is a normalized string and an
// empty string means the value was not found.
type Fields struct {
	ShahoCount         string `json:"shaho_count" msgpack:"shaho_count" dynamodbav:"shaho_count"`
	ShahoAmount        string `json:"shaho_amount" msgpack:"shaho_amount" dynamodbav:"shaho_amount"`
	KokuhoCount        string `json:"kokuho_count" msgpack:"kokuho_count" dynamodbav:"kokuho_count"`
	KokuhoAmount       string `json:"kokuho_amount" msgpack:"kokuho_amount" dynamodbav:"kokuho_amount"`
	KoukiCount         string `json:"kouki_count" msgpack:"kouki_count" dynamodbav:"kouki_count"`
	KoukiAmount        string `json:"kouki_amount" msgpack:"kouki_amount" dynamodbav:"kouki_amount"`
	JihiCount          string `json:"jihi_count" msgpack:"jihi_count" dynamodbav:"jihi_count"`
	JihiAmount         string `json:"jihi_amount" msgpack:"jihi_amount" dynamodbav:"jihi_amount"`
	BushanNote         string `json:"bushan_note" msgpack:"bushan_note" dynamodbav:"bushan_note"`
	BushanAmount       string `json:"bushan_amount" msgpack:"bushan_amount" dynamodbav:"bushan_amount"`
	PreviousDifference string `json:"previous_difference" msgpack:"previous_difference" dynamodbav:"previous_difference"`
	HokenNashiCount    string `json:"hoken_nashi_count" msgpack:"hoken_nashi_count" dynamodbav:"hoken_nashi_count"`
	HokenNashiAmount   string `json:"hoken_nashi_amount" msgpack:"hoken_nashi_amount" dynamodbav:"hoken_nashi_amount"`
}

func (f *Fields) ref(key string) *string {
	switch key {
	case KeyShahoCount:
		return &f.ShahoCount
	case KeyShahoAmount:
		return &f.ShahoAmount
	case KeyKokuhoCount:
		return &f.KokuhoCount
	case KeyKokuhoAmount:
		return &f.KokuhoAmount
	case KeyKoukiCount:
		return &f.KoukiCount
	case KeyKoukiAmount:
		return &f.KoukiAmount
	case KeyJihiCount:
		return &f.JihiCount
	case KeyJihiAmount:
		return &f.JihiAmount
	case KeyBushanNote:
		return &f.BushanNote
	case KeyBushanAmount:
		return &f.BushanAmount
	case KeyPreviousDifference:
		return &f.PreviousDifference
	case KeyHokenNashiCount:
		return &f.HokenNashiCount
	case KeyHokenNashiAmount:
		return &f.HokenNashiAmount
	}
	return nil
}

// Get returns the value stored under key, or "" for unknown keys.
func (f Fields) Get(key string) string {
	if p := f.ref(key); p != nil {
		return *p
	}
	return ""
}

// Set stores value under key and reports whether the key is known.
func (f *Fields) Set(key, value string) bool {
	p := f.ref(key)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// Count returns how many fields are populated.
func (f Fields) Count() int {
	n := 0
	for _, key := range FieldKeys {
		if f.Get(key) != "" {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no field is populated.
func (f Fields) IsEmpty() bool {
	return f.Count() == 0
}

// Missing lists the keys that are still empty, in sheet order.
func (f Fields) Missing() []string {
	var out []string
	for _, key := range FieldKeys {
		if f.Get(key) == "" {
			out = append(out, key)
		}
	}
	return out
}

// Fill copies values from other into empty slots of f and returns the number
// of slots it filled. Populated values in f are never overwritten.
func (f *Fields) Fill(other Fields) int {
	filled := 0
	for _, key := range FieldKeys {
		if f.Get(key) != "" {
			continue
		}
		if v := other.Get(key); v != "" {
			f.Set(key, v)
			filled++
		}
	}
	return filled
}

// Map returns the fields keyed by their JSON names. Empty values are kept so
// the response shape is stable.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(FieldKeys))
	for _, key := range FieldKeys {
		out[key] = f.Get(key)
	}
	return out
}

// SampleFields is the demonstration record returned when sample fallback is
// switched on and nothing could be extracted.
func SampleFields() Fields {
	return Fields{
		ShahoCount:         "25",
		ShahoAmount:        "125000",
		KokuhoCount:        "18",
		KokuhoAmount:       "89000",
		KoukiCount:         "12",
		KoukiAmount:        "45000",
		JihiCount:          "3",
		JihiAmount:         "150000",
		BushanNote:         "歯ブラシ・歯磨き粉",
		BushanAmount:       "3500",
		PreviousDifference: "0",
		HokenNashiCount:    "2",
		HokenNashiAmount:   "8000",
	}
}
