package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ParseStartGameClient validates the C→S Start Game sentinel payload
// and discards its fields; per spec.md §9 they carry no negotiable
// state and are accepted as a pure trigger.
func ParseStartGameClient(payload []byte) error {
	_, off, err := readCString(payload, 0)
	if err != nil {
		return err
	}
	if off+4 > len(payload) {
		return fmt.Errorf("%w: start game payload truncated", ErrMalformedFrame)
	}
	return nil
}

// BuildStartGameServer encodes the S→C Start Game payload: an empty
// name string, the recipient's frame delay, its 1-based player number,
// and the room's total player count.
func BuildStartGameServer(frameDelay uint16, yourPlayerNum, totalPlayers byte) []byte {
	var buf bytes.Buffer
	writeCString(&buf, "")
	var d [2]byte
	binary.LittleEndian.PutUint16(d[:], frameDelay)
	buf.Write(d[:])
	buf.WriteByte(yourPlayerNum)
	buf.WriteByte(totalPlayers)
	return buf.Bytes()
}

// ParseGameData extracts the literal input payload from a 0x12 Game
// Data message. The caller is responsible for checking data_len
// against the sender's expected frame width.
func ParseGameData(payload []byte) ([]byte, error) {
	_, off, err := readCString(payload, 0)
	if err != nil {
		return nil, err
	}
	if off+2 > len(payload) {
		return nil, fmt.Errorf("%w: game data length truncated", ErrMalformedFrame)
	}
	dataLen := int(binary.LittleEndian.Uint16(payload[off : off+2]))
	off += 2
	if off+dataLen > len(payload) {
		return nil, fmt.Errorf("%w: game data payload truncated", ErrMalformedFrame)
	}
	return payload[off : off+dataLen], nil
}

// BuildGameData encodes a 0x12 Game Data payload carrying data verbatim.
func BuildGameData(data []byte) []byte {
	var buf bytes.Buffer
	writeCString(&buf, "")
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(data)))
	buf.Write(l[:])
	buf.Write(data)
	return buf.Bytes()
}

// ParseGameCache extracts the cache position referenced by a 0x13
// Game Cache message.
func ParseGameCache(payload []byte) (byte, error) {
	_, off, err := readCString(payload, 0)
	if err != nil {
		return 0, err
	}
	if off+1 > len(payload) {
		return 0, fmt.Errorf("%w: game cache position truncated", ErrMalformedFrame)
	}
	return payload[off], nil
}

// BuildGameCache encodes a 0x13 Game Cache payload referencing pos.
func BuildGameCache(pos byte) []byte {
	var buf bytes.Buffer
	writeCString(&buf, "")
	buf.WriteByte(pos)
	return buf.Bytes()
}

// ParseDropGameClient validates the C→S Drop Game payload.
func ParseDropGameClient(payload []byte) error {
	_, off, err := readCString(payload, 0)
	if err != nil {
		return err
	}
	if off+1 > len(payload) {
		return fmt.Errorf("%w: drop game payload truncated", ErrMalformedFrame)
	}
	return nil
}

// BuildDropGameServer encodes the S→C Drop Game payload naming the
// dropped player.
func BuildDropGameServer(username string, droppedPlayerNum byte) []byte {
	var buf bytes.Buffer
	writeCString(&buf, username)
	buf.WriteByte(droppedPlayerNum)
	return buf.Bytes()
}

// BuildReadyToPlay encodes the (direction-agnostic) 0x15 payload.
func BuildReadyToPlay() []byte {
	var buf bytes.Buffer
	writeCString(&buf, "")
	return buf.Bytes()
}

// BuildCloseGame encodes the S→C 0x10 payload.
func BuildCloseGame(gameID uint32) []byte {
	var buf bytes.Buffer
	writeCString(&buf, "")
	var g [4]byte
	binary.LittleEndian.PutUint32(g[:], gameID)
	buf.Write(g[:])
	return buf.Bytes()
}

// GameStatus values used in the 0x0E Update Game Status payload.
// spec.md doesn't fix numeric values for these (they're internal to
// the core/lobby boundary); chosen to mirror Room.State ordinally.
type GameStatus byte

const (
	StatusWaiting GameStatus = 0
	StatusNetsync GameStatus = 1
	StatusPlaying GameStatus = 2
)

// BuildUpdateGameStatus encodes the S→C 0x0E payload.
func BuildUpdateGameStatus(gameID uint32, status GameStatus, curPlayers, maxPlayers byte) []byte {
	var buf bytes.Buffer
	writeCString(&buf, "")
	var g [4]byte
	binary.LittleEndian.PutUint32(g[:], gameID)
	buf.Write(g[:])
	buf.WriteByte(byte(status))
	buf.WriteByte(curPlayers)
	buf.WriteByte(maxPlayers)
	return buf.Bytes()
}
