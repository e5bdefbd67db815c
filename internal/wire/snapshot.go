package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
	"golang.org/x/exp/slices"
)

// Server → Client messages

// Side is the edge of the field a player defends. The zero value means the
// player has not been seated yet.
type Side string

const (
	Unassigned Side = ""
	Top        Side = "Top"
	Bottom     Side = "Bottom"
	Left       Side = "Left"
	Right      Side = "Right"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Top, Bottom, Left, Right:
		return Side(s), nil
	}
	return Unassigned, fmt.Errorf("unknown side %q", s)
}

// DefaultPaddleWidth is used when a player entry carries no paddle width.
const DefaultPaddleWidth = 1.0

type PlayerSnapshot struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Score       uint32         `json:"score"`
	Address     netip.AddrPort `json:"addr"` // zero when the server did not send one
	Position    Side           `json:"position,omitempty"`
	PaddlePos   float64        `json:"paddle_position"`
	PaddleDelta float64        `json:"paddle_delta"`
	PaddleWidth *float64       `json:"paddle_width,omitempty"`
}

func (p PlayerSnapshot) Width() float64 {
	if p.PaddleWidth == nil {
		return DefaultPaddleWidth
	}
	return *p.PaddleWidth
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BallSnapshot struct {
	Position Vec2    `json:"position"`
	Velocity Vec2    `json:"velocity"`
	Radius   float64 `json:"radius"`
}

// Valid reports whether every component is finite and the radius is not
// negative.
func (b BallSnapshot) Valid() bool {
	for _, v := range []float64{b.Position.X, b.Position.Y, b.Velocity.X, b.Velocity.Y, b.Radius} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Radius >= 0
}

// Snapshot is one decoded server update. Ball is nil when the packet carried
// none.
type Snapshot struct {
	GameID     uuid.UUID                    `json:"game_id"`
	Players    map[uuid.UUID]PlayerSnapshot `json:"players"`
	State      string                       `json:"state"`
	MaxPlayers int                          `json:"max_players"`
	CreatedAt  time.Time                    `json:"created_at"`
	Ball       *BallSnapshot                `json:"ball"`
}

const (
	// CanonicalFields is the arity of protocol version 1:
	// (game_id, players, state, max_players, created_at, extra, ball).
	CanonicalFields = 7
	// BallessFields is the same layout without the trailing ball.
	BallessFields = 6
)

var (
	ErrInvalidSnapshot     = errors.New("invalid snapshot")
	ErrUnsupportedRevision = fmt.Errorf("%w: unsupported revision", ErrInvalidSnapshot)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSnapshot, fmt.Sprintf(format, args...))
}

// DecodeSnapshot parses a raw MessagePack snapshot or a tagged envelope
// holding one. Every failure wraps ErrInvalidSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if IsEnveloped(data) {
		kind, body, err := Open(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		if kind != KindSnapshot {
			return nil, invalid("envelope kind %d is not a snapshot", kind)
		}
		return decodeSnapshot(body, true)
	}
	return decodeSnapshot(data, false)
}

func decodeSnapshot(data []byte, strict bool) (snap *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, invalid("decoder panic: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, invalid("empty packet")
	}
	if err := checkBounds(data); err != nil {
		return nil, invalid("%v", err)
	}
	r := bytes.NewReader(data)
	d := msgpack.NewDecoder(r)

	n, err := d.DecodeArrayLen()
	if err != nil {
		return nil, invalid("envelope is not a sequence: %v", err)
	}
	switch {
	case n == CanonicalFields:
	case n == BallessFields && !strict:
	default:
		return nil, invalid("unexpected arity %d", n)
	}

	s := &Snapshot{}
	if s.GameID, err = decodeUUID(d); err != nil {
		return nil, invalid("game_id: %v", err)
	}
	if s.Players, err = decodePlayers(d); err != nil {
		return nil, invalid("players: %v", err)
	}
	if s.State, err = decodeOptString(d); err != nil {
		return nil, invalid("state: %v", err)
	}

	// Field 3 tells the two historical six-field layouts apart: max_players is
	// an integer, while the older layout put created_at here.
	c, err := d.PeekCode()
	if err != nil {
		return nil, invalid("max_players: %v", err)
	}
	if !isInt(c) {
		if n == BallessFields {
			return nil, ErrUnsupportedRevision
		}
		return nil, invalid("max_players: unexpected code 0x%02x", c)
	}
	maxPlayers, err := d.DecodeInt64()
	if err != nil {
		return nil, invalid("max_players: %v", err)
	}
	s.MaxPlayers = int(maxPlayers)

	if s.CreatedAt, err = decodeTimestamp(d); err != nil {
		return nil, invalid("created_at: %v", err)
	}
	if err := d.Skip(); err != nil {
		return nil, invalid("extra: %v", err)
	}
	if n == CanonicalFields {
		if s.Ball, err = decodeBall(d); err != nil {
			return nil, invalid("ball: %v", err)
		}
	}
	if r.Len() != 0 {
		return nil, invalid("%d trailing bytes", r.Len())
	}
	return s, nil
}

func decodePlayers(d *msgpack.Decoder) (map[uuid.UUID]PlayerSnapshot, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	players := make(map[uuid.UUID]PlayerSnapshot, max(n, 0))
	for i := 0; i < n; i++ {
		key, err := decodeUUID(d)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		p, err := decodePlayer(d)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", key, err)
		}
		if p.ID != key {
			return nil, fmt.Errorf("player %s: entry id %s does not match key", key, p.ID)
		}
		players[key] = p
	}
	return players, nil
}

// decodePlayer reads [id, name, score, address, position, paddle_pos,
// paddle_delta, paddle_width?].
func decodePlayer(d *msgpack.Decoder) (PlayerSnapshot, error) {
	var p PlayerSnapshot
	n, err := d.DecodeArrayLen()
	if err != nil {
		return p, err
	}
	if n != 7 && n != 8 {
		return p, fmt.Errorf("unexpected arity %d", n)
	}
	if p.ID, err = decodeUUID(d); err != nil {
		return p, fmt.Errorf("id: %w", err)
	}
	if p.Name, err = decodeOptString(d); err != nil {
		return p, fmt.Errorf("name: %w", err)
	}
	c, err := d.PeekCode()
	if err != nil {
		return p, err
	}
	if !isInt(c) {
		return p, fmt.Errorf("score: unexpected code 0x%02x", c)
	}
	score, err := d.DecodeUint64()
	if err != nil {
		return p, fmt.Errorf("score: %w", err)
	}
	if score > math.MaxUint32 {
		return p, fmt.Errorf("score %d out of range", score)
	}
	p.Score = uint32(score)
	if p.Address, err = decodeAddress(d); err != nil {
		return p, fmt.Errorf("address: %w", err)
	}
	pos, err := decodeOptString(d)
	if err != nil {
		return p, fmt.Errorf("position: %w", err)
	}
	if pos != "" {
		if p.Position, err = ParseSide(pos); err != nil {
			return p, err
		}
	}
	if p.PaddlePos, err = decodeNumber(d); err != nil {
		return p, fmt.Errorf("paddle_pos: %w", err)
	}
	if p.PaddleDelta, err = decodeNumber(d); err != nil {
		return p, fmt.Errorf("paddle_delta: %w", err)
	}
	if n == 8 {
		c, err := d.PeekCode()
		if err != nil {
			return p, err
		}
		if c == msgpcode.Nil {
			_ = d.DecodeNil()
		} else {
			w, err := decodeNumber(d)
			if err != nil {
				return p, fmt.Errorf("paddle_width: %w", err)
			}
			p.PaddleWidth = &w
		}
	}
	return p, nil
}

// decodeBall reads [[x, y], [vx, vy], radius] or nil.
func decodeBall(d *msgpack.Decoder) (*BallSnapshot, error) {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n != 3 {
		return nil, fmt.Errorf("unexpected arity %d", n)
	}
	var b BallSnapshot
	if b.Position, err = decodeVec2(d); err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}
	if b.Velocity, err = decodeVec2(d); err != nil {
		return nil, fmt.Errorf("velocity: %w", err)
	}
	if b.Radius, err = decodeNumber(d); err != nil {
		return nil, fmt.Errorf("radius: %w", err)
	}
	if !b.Valid() {
		return nil, errors.New("non-finite component or negative radius")
	}
	return &b, nil
}

func decodeVec2(d *msgpack.Decoder) (Vec2, error) {
	var v Vec2
	n, err := d.DecodeArrayLen()
	if err != nil {
		return v, err
	}
	if n != 2 {
		return v, fmt.Errorf("unexpected arity %d", n)
	}
	if v.X, err = decodeNumber(d); err != nil {
		return v, err
	}
	if v.Y, err = decodeNumber(d); err != nil {
		return v, err
	}
	return v, nil
}

// decodeAddress accepts nil, an "ip:port" string, or the externally tagged
// {"V4": [[a, b, c, d], port]} / {"V6": [[...16], port, flow, scope]} form.
func decodeAddress(d *msgpack.Decoder) (netip.AddrPort, error) {
	c, err := d.PeekCode()
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch {
	case c == msgpcode.Nil:
		return netip.AddrPort{}, d.DecodeNil()
	case msgpcode.IsString(c):
		s, err := d.DecodeString()
		if err != nil {
			return netip.AddrPort{}, err
		}
		return netip.ParseAddrPort(s)
	case isMap(c):
	default:
		return netip.AddrPort{}, fmt.Errorf("unexpected code 0x%02x", c)
	}

	n, err := d.DecodeMapLen()
	if err != nil {
		return netip.AddrPort{}, err
	}
	if n != 1 {
		return netip.AddrPort{}, fmt.Errorf("tagged address with %d keys", n)
	}
	family, err := d.DecodeString()
	if err != nil {
		return netip.AddrPort{}, err
	}
	var want int
	switch family {
	case "V4":
		want = 4
	case "V6":
		want = 16
	default:
		return netip.AddrPort{}, fmt.Errorf("unknown address family %q", family)
	}

	fields, err := d.DecodeArrayLen()
	if err != nil {
		return netip.AddrPort{}, err
	}
	if fields < 2 {
		return netip.AddrPort{}, fmt.Errorf("address tuple of %d fields", fields)
	}
	ip, err := decodeOctets(d, want)
	if err != nil {
		return netip.AddrPort{}, err
	}
	port, err := d.DecodeUint64()
	if err != nil {
		return netip.AddrPort{}, err
	}
	if port > math.MaxUint16 {
		return netip.AddrPort{}, fmt.Errorf("port %d out of range", port)
	}
	for i := 2; i < fields; i++ {
		if err := d.Skip(); err != nil {
			return netip.AddrPort{}, err
		}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("bad ip %v", ip)
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

func decodeOctets(d *msgpack.Decoder, want int) ([]byte, error) {
	c, err := d.PeekCode()
	if err != nil {
		return nil, err
	}
	if msgpcode.IsBin(c) {
		b, err := d.DecodeBytes()
		if err != nil {
			return nil, err
		}
		if len(b) != want {
			return nil, fmt.Errorf("ip of %d bytes", len(b))
		}
		return b, nil
	}
	n, err := d.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n != want {
		return nil, fmt.Errorf("ip of %d octets", n)
	}
	ip := make([]byte, n)
	for i := range ip {
		v, err := d.DecodeUint64()
		if err != nil {
			return nil, err
		}
		if v > math.MaxUint8 {
			return nil, fmt.Errorf("octet %d out of range", v)
		}
		ip[i] = byte(v)
	}
	return ip, nil
}

// decodeUUID accepts the 16-byte binary form and the canonical string form.
func decodeUUID(d *msgpack.Decoder) (uuid.UUID, error) {
	c, err := d.PeekCode()
	if err != nil {
		return uuid.Nil, err
	}
	switch {
	case msgpcode.IsBin(c):
		b, err := d.DecodeBytes()
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.FromBytes(b)
	case msgpcode.IsString(c):
		s, err := d.DecodeString()
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.Parse(s)
	}
	return uuid.Nil, fmt.Errorf("unexpected code 0x%02x", c)
}

func decodeOptString(d *msgpack.Decoder) (string, error) {
	c, err := d.PeekCode()
	if err != nil {
		return "", err
	}
	if c == msgpcode.Nil {
		return "", d.DecodeNil()
	}
	if !msgpcode.IsString(c) {
		return "", fmt.Errorf("unexpected code 0x%02x", c)
	}
	return d.DecodeString()
}

// decodeTimestamp tolerates whatever the server put in created_at; only an
// RFC 3339 string is kept.
func decodeTimestamp(d *msgpack.Decoder) (time.Time, error) {
	c, err := d.PeekCode()
	if err != nil {
		return time.Time{}, err
	}
	if !msgpcode.IsString(c) {
		return time.Time{}, d.Skip()
	}
	s, err := d.DecodeString()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func decodeNumber(d *msgpack.Decoder) (float64, error) {
	c, err := d.PeekCode()
	if err != nil {
		return 0, err
	}
	switch {
	case c == msgpcode.Float || c == msgpcode.Double:
		return d.DecodeFloat64()
	case isInt(c):
		n, err := d.DecodeInt64()
		return float64(n), err
	}
	return 0, fmt.Errorf("unexpected code 0x%02x", c)
}

func isInt(c byte) bool {
	return msgpcode.IsFixedNum(c) || (c >= msgpcode.Uint8 && c <= msgpcode.Int64)
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

// EncodeSnapshot writes s in the canonical seven-field layout. Players are
// written in id order so equal snapshots produce equal bytes.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	e := msgpack.NewEncoder(&buf)

	ids := make([]uuid.UUID, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	err := errors.Join(
		e.EncodeArrayLen(CanonicalFields),
		e.EncodeBytes(s.GameID[:]),
		e.EncodeMapLen(len(ids)),
	)
	for _, id := range ids {
		err = errors.Join(err, e.EncodeBytes(id[:]), encodePlayer(e, s.Players[id]))
	}
	var created any
	if !s.CreatedAt.IsZero() {
		created = s.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	err = errors.Join(err,
		e.EncodeString(s.State),
		e.EncodeInt(int64(s.MaxPlayers)),
		e.Encode(created),
		e.EncodeNil(),
		encodeBall(e, s.Ball),
	)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePlayer(e *msgpack.Encoder, p PlayerSnapshot) error {
	fields := 7
	if p.PaddleWidth != nil {
		fields = 8
	}
	var pos any
	if p.Position != Unassigned {
		pos = string(p.Position)
	}
	err := errors.Join(
		e.EncodeArrayLen(fields),
		e.EncodeBytes(p.ID[:]),
		e.EncodeString(p.Name),
		e.EncodeUint(uint64(p.Score)),
		encodeAddress(e, p.Address),
		e.Encode(pos),
		e.EncodeFloat64(p.PaddlePos),
		e.EncodeFloat64(p.PaddleDelta),
	)
	if p.PaddleWidth != nil {
		err = errors.Join(err, e.EncodeFloat64(*p.PaddleWidth))
	}
	return err
}

func encodeAddress(e *msgpack.Encoder, a netip.AddrPort) error {
	if !a.IsValid() {
		return e.EncodeNil()
	}
	ip := a.Addr().Unmap()
	family, octets := "V4", ip.AsSlice()
	if ip.Is6() {
		family = "V6"
	}
	err := errors.Join(
		e.EncodeMapLen(1),
		e.EncodeString(family),
		e.EncodeArrayLen(2),
		e.EncodeArrayLen(len(octets)),
	)
	for _, o := range octets {
		err = errors.Join(err, e.EncodeUint(uint64(o)))
	}
	return errors.Join(err, e.EncodeUint(uint64(a.Port())))
}

func encodeBall(e *msgpack.Encoder, b *BallSnapshot) error {
	if b == nil {
		return e.EncodeNil()
	}
	return errors.Join(
		e.EncodeArrayLen(3),
		e.EncodeArrayLen(2),
		e.EncodeFloat64(b.Position.X),
		e.EncodeFloat64(b.Position.Y),
		e.EncodeArrayLen(2),
		e.EncodeFloat64(b.Velocity.X),
		e.EncodeFloat64(b.Velocity.Y),
		e.EncodeFloat64(b.Radius),
	)
}
