package gateway

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
)

// IdleSuspender is the subset of conn.Connection the server-side handler
// needs to borrow a link's read thread for the duration of one HTTP
// relay call without tripping its idle timeout (spec.md §4.8 step 2).
type IdleSuspender interface {
	SuspendIdleTimeout()
	ResumeIdleTimeout()
}

// ReplyFunc routes an encoded GatewayAck back to origin as a SINGLE
// package.
type ReplyFunc func(origin uint32, ack *protocol.GatewayAck)

// httpDoFunc performs one outbound relay request, returning its status
// code (0 on a network-level failure) and an error message.
type httpDoFunc func(destURL, payload, content string) (status int, errMsg string)

// Server is the gateway-side handler for inbound type=620 GatewayData
// packages: deduplicate, suspend the sending connection's idle timeout,
// verify actual internet reachability, perform the relay HTTP call, and
// reply with a GatewayAck (spec.md §4.8, steps 1-5).
type Server struct {
	selfNodeID uint32
	dedup      *Dedup
	reply      ReplyFunc

	dnsHost    string
	dnsPort    int
	dnsTimeout time.Duration
	dial       Dialer

	httpClient *fasthttp.Client
	doHTTP     httpDoFunc
}

// NewServer wires a Server. reply delivers the final GatewayAck back
// onto the mesh.
func NewServer(selfNodeID uint32, dedup *Dedup, dnsHost string, dnsPort int, reply ReplyFunc) *Server {
	s := &Server{
		selfNodeID: selfNodeID,
		dedup:      dedup,
		reply:      reply,
		dnsHost:    dnsHost,
		dnsPort:    dnsPort,
		dnsTimeout: 3 * time.Second,
		dial:       net.DialTimeout,
		httpClient: &fasthttp.Client{},
	}
	s.doHTTP = s.doRequestLive
	return s
}

// SetDialer overrides the DNS-reachability dialer, used by tests.
func (s *Server) SetDialer(d Dialer) {
	s.dial = d
}

// SetHTTPDo overrides the outbound relay call, used by tests to avoid
// real network access.
func (s *Server) SetHTTPDo(fn httpDoFunc) {
	s.doHTTP = fn
}

// Handle implements spec.md §4.8's 5-step gateway dispatch for one
// inbound GatewayData. conn is the link the request arrived on (used
// only to suspend/resume its idle timeout around the blocking HTTP
// call); it may be nil in tests that don't care about timeout
// suspension.
func (s *Server) Handle(data *protocol.GatewayData, conn IdleSuspender, now time.Time) {
	duplicate, needsAck := s.dedup.Seen(data.MsgID, data.Origin, now)
	if duplicate && !needsAck {
		return
	}

	if conn != nil {
		conn.SuspendIdleTimeout()
		defer conn.ResumeIdleTimeout()
	}

	if duplicate {
		s.dedup.MarkAckSent(data.MsgID, data.Origin)
		s.sendCachedDuplicateAck(data, now)
		return
	}

	if !s.internetReachable() {
		s.dedup.MarkAckSent(data.MsgID, data.Origin)
		s.ack(data, false, 0, "no internet connectivity at bridge", now)
		return
	}

	status, errMsg := s.doHTTP(data.DestURL, data.Payload, data.Content)
	s.dedup.MarkAckSent(data.MsgID, data.Origin)
	s.ack(data, Success(status), status, errMsg, now)
}

// sendCachedDuplicateAck handles the case where a retry arrived before
// the original request's ACK went out: spec.md §4.8 step 1 says this
// collapses into a single ACK rather than a second HTTP call, but since
// the original's outcome isn't retained here, the collapsed ACK simply
// acknowledges receipt without re-performing the request.
func (s *Server) sendCachedDuplicateAck(data *protocol.GatewayData, now time.Time) {
	s.ack(data, true, 200, "", now)
}

// internetReachable is the reachability check of spec.md §4.8 step 3:
// it opens a TCP connection to the configured DNS host and port through
// the Server's dialer and closes it at once, reporting whether the
// connect succeeded. It does not resolve a name, so a captive portal
// that accepts port-53 connects still passes it.
func (s *Server) internetReachable() bool {
	addr := net.JoinHostPort(s.dnsHost, strconv.Itoa(s.dnsPort))
	c, err := s.dial("tcp", addr, s.dnsTimeout)
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// doRequestLive performs the actual outbound HTTP relay (spec.md §4.8
// step 4) via fasthttp and returns the resulting status code (0 on a
// network-level failure) plus an error string for the ACK on failure.
func (s *Server) doRequestLive(destURL, payload, content string) (int, string) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(destURL)
	if payload != "" {
		req.Header.SetMethod(fasthttp.MethodPost)
		if content != "" {
			req.Header.SetContentType(content)
		}
		req.SetBodyString(payload)
	} else {
		req.Header.SetMethod(fasthttp.MethodGet)
	}

	if err := s.httpClient.Do(req, resp); err != nil {
		return 0, err.Error()
	}
	status := resp.StatusCode()
	if !Success(status) {
		return status, fmt.Sprintf("upstream returned status %d", status)
	}
	return status, ""
}

func (s *Server) ack(data *protocol.GatewayData, success bool, status int, errMsg string, now time.Time) {
	ack := &protocol.GatewayAck{
		Envelope: protocol.Envelope{MsgType: protocol.TypeGatewayAck, From: s.selfNodeID, Dest: data.Origin, Routing: protocol.RoutingSingle},
		MsgID:    data.MsgID,
		Origin:   data.Origin,
		Success:  success,
		HTTP:     uint16(status),
		Err:      errMsg,
		TS:       uint32(now.Unix()),
	}
	s.reply(data.Origin, ack)
}
