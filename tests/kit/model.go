package kit

import (
	"bufio"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beyondstorage/beyond-relay/utils"
)

// replyClass says how a command is answered, see RFC 959 section 6.
type replyClass int

const (
	singleReply  replyClass = iota // one final reply
	dataReply                      // 150, then a final reply once the data connection is done
	loginReply                     // final reply, or 3xx asking for the next login step
	pendingReply                   // 3xx waiting for a follow-up command (RNFR, REST)
)

type state int

const (
	erro state = iota
	wait
	success
	failure
	another
)

func (s state) String() string {
	return [...]string{"error", "wait", "success", "failure", "another"}[s]
}

// classStates maps the first digit of a reply code to a state, per class.
var classStates = map[replyClass][6]state{
	singleReply:  {erro, erro, success, erro, failure, failure},
	dataReply:    {erro, wait, success, erro, failure, failure},
	loginReply:   {erro, erro, success, another, failure, failure},
	pendingReply: {erro, erro, erro, another, failure, failure},
}

// Replies of the data connection relay.
const (
	codeOpening    = 150
	codeClosing    = 226
	codeCannotOpen = 425
	codeAborted    = 426
)

type code int

func (c code) state(class replyClass) state {
	d := int(c) / 100
	if d < 0 || d > 5 {
		return erro
	}
	return classStates[class][d]
}

type reply struct {
	code code
	msg  string
}

// exchange is one command sent on the control connection and the replies
// read for it so far.
type exchange struct {
	t     *testing.T
	class replyClass
	conn  utils.Conn

	replies []reply
}

func newExchange(t *testing.T, class replyClass, conn utils.Conn) *exchange {
	return &exchange{t: t, class: class, conn: conn}
}

func (e *exchange) Begin(cmd string) *exchange {
	send(bufio.NewWriter(e.conn), cmd)
	return e
}

func (e *exchange) next() reply {
	c, msg := response(bufio.NewReader(e.conn))
	r := reply{code: c, msg: msg}
	e.replies = append(e.replies, r)
	return r
}

func (e *exchange) Expect(states ...state) *exchange {
	return e.ExpectWithMsg("", states...)
}

func (e *exchange) ExpectWithMsg(message string, states ...state) *exchange {
	r := e.next()
	if message != "" {
		assert.Equal(e.t, message, r.msg)
	}
	cur := r.code.state(e.class)
	ok := utils.AnyOf(states, func(i int) bool {
		return states[i] == cur
	})
	assert.True(e.t, ok, fmt.Sprintf("reply %d %q: expect one of %v, actual %v", r.code, r.msg, states, cur))
	return e
}

// ExpectCode reads the next reply and checks its code, and its text when
// given.
func (e *exchange) ExpectCode(c int, msg ...string) *exchange {
	r := e.next()
	assert.Equal(e.t, code(c), r.code, "reply %q", r.msg)
	if m := first(msg); m != "" {
		assert.Equal(e.t, m, r.msg)
	}
	return e
}

// Opened expects the data connection to be announced.
func (e *exchange) Opened() *exchange {
	return e.ExpectCode(codeOpening, "Using transfer connection")
}

// Transferred expects the data connection to be closed after a complete
// transfer.
func (e *exchange) Transferred() *exchange {
	return e.ExpectCode(codeClosing, "Closing data connection.")
}

// Aborted expects the transfer to have been cut short.
func (e *exchange) Aborted() *exchange {
	return e.ExpectCode(codeAborted, "Connection closed; transfer aborted")
}

// NotOpened expects the data connection to have failed to open.
func (e *exchange) NotOpened() *exchange {
	return e.ExpectCode(codeCannotOpen, "Could not open data connection")
}

// AbortDone expects the reply to ABOR.
func (e *exchange) AbortDone() *exchange {
	return e.ExpectCode(codeClosing, "abort command was successfully processed")
}

func (e *exchange) TakeAction(f func()) *exchange {
	f()
	return e
}

func (e *exchange) Wait(msg ...string) *exchange {
	return e.ExpectWithMsg(first(msg), wait)
}

func (e *exchange) Failure(msg ...string) *exchange {
	return e.ExpectWithMsg(first(msg), failure)
}

func (e *exchange) Success(msg ...string) *exchange {
	return e.ExpectWithMsg(first(msg), success)
}

func (e *exchange) Error(msg ...string) *exchange {
	return e.ExpectWithMsg(first(msg), erro)
}

func (e *exchange) Another() *exchange {
	return e.Expect(another)
}

// Auto consumes the preliminary reply of a data command.
func (e *exchange) Auto() *exchange {
	if e.class == dataReply {
		return e.Expect(wait)
	}
	return e
}

func (e *exchange) message() []string {
	msgs := make([]string, len(e.replies))
	for i, r := range e.replies {
		msgs[i] = r.msg
	}
	return msgs
}

func first(msg []string) string {
	if len(msg) == 0 {
		return ""
	}
	return msg[0]
}
