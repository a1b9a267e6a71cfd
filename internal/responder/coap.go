package responder

import (
	"encoding/json"

	"firestige.xyz/ethresponder/internal/coap"
	"firestige.xyz/ethresponder/internal/frame"
	"firestige.xyz/ethresponder/internal/metrics"
	"firestige.xyz/ethresponder/internal/web"
)

const ledPath = "led"

// ledRequest is the body of a PUT /led.
type ledRequest struct {
	LED *bool `json:"led"`
}

// handleUDP serves CoAP requests on the configured port. Other datagrams
// addressed to us are ignored.
func (d *Dispatcher) handleUDP(f *frame.Frame, ip frame.IPv4) (Protocol, error) {
	u, err := frame.ParseUDP(ip.Payload())
	if err != nil {
		return ProtoNone, err
	}
	if !u.IsChecksumValid(ip.Source(), ip.Destination()) {
		return ProtoNone, errBadChecksum("udp")
	}
	if u.DestinationPort() != d.cfg.CoAPPort {
		return ProtoNone, nil
	}

	req := &d.req
	if err := req.Unmarshal(u.Payload()); err != nil {
		return ProtoNone, err
	}
	if req.Type != coap.Confirmable && req.Type != coap.NonConfirmable {
		return ProtoNone, nil
	}
	if !req.Code.IsRequest() {
		return ProtoNone, errUnsupported("coap " + req.Code.String() + " in a request")
	}

	// Everything needed from the request is copied out before the buffer is
	// handed to the builder. The resource acts even when the reply cannot be
	// routed.
	mid := req.MessageID
	token := d.token[:copy(d.token[:], req.Token)]
	code, body := d.serveLED(req)

	peer, peerPort := ip.Source(), u.SourcePort()
	r, err := d.route(peer)
	if err != nil {
		return ProtoNone, err
	}

	resp := coap.Message{
		Type:      coap.Acknowledgement,
		Code:      code,
		MessageID: mid,
		Token:     token,
		Payload:   body,
	}
	if len(body) > 0 {
		d.opts[0] = coap.Option{ID: coap.ContentFormat, Value: coap.EncodeUint(d.cf[:], uint32(coap.FormatJSON))}
		resp.Options = d.opts[:]
	}

	b := f.Recycle()
	n, err := resp.MarshalTo(b.UDPPayload())
	if err != nil {
		return ProtoNone, err
	}
	if err := b.FinishUDP(&r, d.cfg.CoAPPort, peerPort, n); err != nil {
		return ProtoNone, err
	}
	return ProtoCoAP, nil
}

// serveLED implements the /led resource. GET reports the pin level; PUT with
// {"led": bool} drives it.
func (d *Dispatcher) serveLED(req *coap.Message) (coap.Code, []byte) {
	if !req.PathIs(ledPath) {
		return coap.BadRequest, nil
	}

	switch req.Code {
	case coap.GET:
		d.body = web.AppendLEDJSON(d.body[:0], d.led.Level())
		return coap.Content, d.body

	case coap.PUT:
		var body ledRequest
		if err := json.Unmarshal(req.Payload, &body); err != nil || body.LED == nil {
			return coap.BadRequest, nil
		}
		if err := d.led.Set(*body.LED); err != nil {
			d.log.WithError(err).Warn("led pin write failed")
			return coap.InternalServerError, nil
		}
		metrics.LEDState.Set(boolGauge(*body.LED))
		d.log.WithField("led", *body.LED).Info("led set")
		return coap.Changed, nil

	default:
		return coap.BadRequest, nil
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
