package enum

// Exchange is the venue half of a local symbol.
type Exchange uint8

const (
	_exchange_beg Exchange = iota
	ExchangeSHFE
	ExchangeINE
	ExchangeCZCE
	ExchangeCFFEX
	ExchangeDCE
	ExchangeSSE
	ExchangeSZSE
	ExchangeSGE
	_exchange_end
)

var exchangeNames = [...]string{
	ExchangeSHFE:  "SHFE",
	ExchangeINE:   "INE",
	ExchangeCZCE:  "CZCE",
	ExchangeCFFEX: "CFFEX",
	ExchangeDCE:   "DCE",
	ExchangeSSE:   "SSE",
	ExchangeSZSE:  "SZSE",
	ExchangeSGE:   "SGE",
}

func (e Exchange) IsAvailable() bool {
	return e > _exchange_beg && e < _exchange_end
}

func (e Exchange) String() string {
	if !e.IsAvailable() {
		return ""
	}
	return exchangeNames[e]
}

func (e Exchange) MarshalText() ([]byte, error) {
	return marshalName(e.IsAvailable(), e.String(), "exchange", uint8(e))
}

func (e *Exchange) UnmarshalText(b []byte) error {
	v, err := parseName(exchangeNames[:], b, "exchange")
	if err != nil {
		return err
	}
	*e = Exchange(v)
	return nil
}
