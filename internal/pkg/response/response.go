package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/classmate/internal/pkg/errcode"
)

// codeErr carries an errcode value into the proxyutil envelope.
type codeErr struct {
	code int
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return uint32(e.code)
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes {code, message} with http 200. An empty message falls back to the
// default text of code.
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = errcode.Message(code)
	}
	proxyutil.FailJson(c, 200, codeErr{code: code, msg: message})
}
