package xhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Not Found", StatusText(StatusNotFound))
	assert.Equal(t, "Request Timeout", StatusText(StatusRequestTimeout))
	assert.Equal(t, "Internal Server Error", StatusText(StatusInternalServerError))
	assert.Equal(t, fasthttp.StatusMessage(499), StatusText(499))
}
