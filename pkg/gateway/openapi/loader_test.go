package openapi

import (
	"context"
	"testing"

	"github.com/cuemby/fabrik/pkg/gateway"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
openapi: "3.0.0"
info:
  title: shopping-cart
  version: "1.0"
paths:
  /foo/{user-id}:
    get:
      operationId: getCart
      parameters:
        - name: user-id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
      x-fabrik-binding:
        kind: worker
        componentId: shopping-cart
        workerName: '"shopping-cart-${request.path.user-id}"'
        response: 'golem:it/api.{get-cart-contents}("a")'
        readsQuery: true
  /healthz:
    get:
      operationId: health
      responses:
        "200":
          description: ok
`

func TestLoadBuildsRoutableDefinition(t *testing.T) {
	def, err := Load(context.Background(), []byte(sampleDoc))
	require.NoError(t, err)

	route, vars, ok := def.Resolve("GET", "/foo/1")
	require.True(t, ok)
	require.Equal(t, gateway.BindingWorker, route.Binding.Kind)
	require.Equal(t, "1", vars["user-id"])
}

func TestLoadSkipsOperationsWithoutBindingExtension(t *testing.T) {
	def, err := Load(context.Background(), []byte(sampleDoc))
	require.NoError(t, err)

	_, _, ok := def.Resolve("GET", "/healthz")
	require.False(t, ok)
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	_, err := Load(context.Background(), []byte("not: valid: yaml: ["))
	require.Error(t, err)
}
