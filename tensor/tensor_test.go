package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kan/tensor"
)

func TestPublicAPI(t *testing.T) {
	x, err := tensor.FromRows([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, x.Shape())

	id, err := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, x.Data(), tensor.MatMul(x, id).Data())

	assert.Equal(t, []float32{7, 7}, tensor.Full(tensor.Shape{2}, 7).Data())
	assert.Equal(t, 6, tensor.Zeros(tensor.Shape{2, 3}).NumElements())
}
