package okx

// subscribeArg selects one channel/instrument pair.
type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// subscribeRequest is the op envelope for subscribe/unsubscribe.
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

// wsMessage is the common push envelope. Event frames (subscribe acks,
// errors) carry Event; data frames carry Action and Data.
type wsMessage struct {
	Event  string       `json:"event,omitempty"`
	Code   string       `json:"code,omitempty"`
	Msg    string       `json:"msg,omitempty"`
	Arg    subscribeArg `json:"arg"`
	Action string       `json:"action,omitempty"`
	Data   []struct {
		// books channel. Sequence fields are signed on the wire: the
		// initial snapshot carries prevSeqId -1.
		Asks      [][]string `json:"asks"`
		Bids      [][]string `json:"bids"`
		Ts        string     `json:"ts"`
		Checksum  int32      `json:"checksum"`
		SeqID     int64      `json:"seqId"`
		PrevSeqID int64      `json:"prevSeqId"`

		// trades channel
		InstID  string `json:"instId"`
		TradeID string `json:"tradeId"`
		Px      string `json:"px"`
		Sz      string `json:"sz"`
		Side    string `json:"side"`
	} `json:"data"`
}
