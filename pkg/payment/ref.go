package payment

import "encoding/json"

// Ref is a provider identifier. Cashfree sends some ids quoted and others as
// bare numbers depending on the API and event.
type Ref string

func (r *Ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Ref(n.String())
	return nil
}

func (r Ref) String() string {
	return string(r)
}
