package names

import (
	"github.com/emberos/kernel/internal/buffer"
	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/shared/types"
)

// Client talks to the name service.
type Client struct {
	c   *client.Client
	cid types.CID
}

// Connect binds to the well-known name service mailbox.
func Connect(c *client.Client) (*Client, error) {
	cid, err := c.Connect(cap.FromName(WellKnownName))
	if err != nil {
		return nil, err
	}
	return &Client{c: c, cid: cid}, nil
}

// Register claims a service name with a connection budget (0 for the
// default) and returns the fresh SID to serve under.
func (n *Client) Register(t *client.Thread, name string, limit uint32) (cap.SID, error) {
	resp, err := n.roundTrip(t, OpRegister, request{Name: name, Limit: limit})
	if err != nil {
		return cap.SID{}, err
	}
	return sidOf(resp)
}

// Lookup resolves a name and connects to it, consuming one unit of the
// name's budget. The returned CID is refcounted process-wide like any
// other.
func (n *Client) Lookup(t *client.Thread, name string) (types.CID, error) {
	resp, err := n.roundTrip(t, OpLookup, request{Name: name})
	if err != nil {
		return types.NoCID, err
	}
	sid, err := sidOf(resp)
	if err != nil {
		return types.NoCID, err
	}
	return n.c.Connect(sid)
}

// Close releases the service connection.
func (n *Client) Close() error {
	return n.c.Disconnect(n.cid)
}

func (n *Client) roundTrip(t *client.Thread, op uint64, req request) (response, error) {
	buf, err := buffer.Into(n.c, req)
	if err != nil {
		return response{}, err
	}
	defer buf.Free()

	if err := buf.LendMut(t, n.cid, op); err != nil {
		return response{}, err
	}
	return buffer.Decode[response](buf)
}

func sidOf(resp response) (cap.SID, error) {
	if resp.Errno != 0 {
		return cap.SID{}, &types.Error{Kind: types.Kind(resp.Errno)}
	}
	if len(resp.SID) != len(cap.SID{}) {
		return cap.SID{}, types.ErrInternal
	}
	var sid cap.SID
	copy(sid[:], resp.SID)
	return sid, nil
}
