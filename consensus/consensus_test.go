package consensus

import (
	"testing"

	"github.com/grailbio/bio/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func col(pairs ...interface{}) []Observation {
	obs := make([]Observation, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		obs = append(obs, Observation{Base: pairs[i].(byte), Qual: pairs[i+1].(byte)})
	}
	return obs
}

func TestCallUnanimousAgreement(t *testing.T) {
	q := DecodePhred33('I')
	base, qual, err := Call(col(byte('A'), q, byte('A'), q))
	require.NoError(t, err)
	assert.Equal(t, byte('A'), base)
	assert.GreaterOrEqual(t, qual, DecodePhred33('I')-1)
	assert.LessOrEqual(t, qual, byte(QualMax))
}

func TestCallSingleObservationPreservesQuality(t *testing.T) {
	q := DecodePhred33('I')
	base, qual, err := Call(col(byte('A'), q))
	require.NoError(t, err)
	assert.Equal(t, byte('A'), base)
	assert.GreaterOrEqual(t, qual, q-1)
}

func TestCallDisagreementTieBreaksToLowestAllele(t *testing.T) {
	q := DecodePhred33('I')
	base, _, err := Call(col(byte('A'), q, byte('T'), q))
	require.NoError(t, err)
	assert.Equal(t, byte('A'), base)
}

func TestCallDisagreementLowersQualityBelowAgreement(t *testing.T) {
	q := DecodePhred33('I')
	_, agreeQual, err := Call(col(byte('A'), q, byte('A'), q))
	require.NoError(t, err)
	_, disagreeQual, err := Call(col(byte('A'), q, byte('T'), q))
	require.NoError(t, err)
	assert.Less(t, disagreeQual, agreeQual)
}

func TestCallAllN(t *testing.T) {
	base, qual, err := Call(col(byte('N'), byte(0), byte('N'), byte(2)))
	require.NoError(t, err)
	assert.Equal(t, byte('N'), base)
	assert.Equal(t, byte(0), qual)
}

func TestCallMixedNDoesNotWin(t *testing.T) {
	q := DecodePhred33('I')
	base, _, err := Call(col(byte('C'), q, byte('N'), byte(2)))
	require.NoError(t, err)
	assert.Equal(t, byte('C'), base)
}

func TestCallUnknownBaseIsConfigError(t *testing.T) {
	_, _, err := Call(col(byte('R'), DecodePhred33('I')))
	require.Error(t, err)
	var cfgErr *errs.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestCallQualityClampedToRange(t *testing.T) {
	// A long run of perfect agreement at very high input quality should
	// clamp at QualMax rather than diverge.
	q := DecodePhred33('~') // quality 93
	obs := make([]Observation, 0, 40)
	for i := 0; i < 40; i++ {
		obs = append(obs, Observation{Base: 'G', Qual: q})
	}
	base, qual, err := Call(obs)
	require.NoError(t, err)
	assert.Equal(t, byte('G'), base)
	assert.Equal(t, byte(QualMax), qual)
}

func TestQualStringRoundTrip(t *testing.T) {
	const wire = "IIIAAA!!!"
	decoded := DecodeQualString(wire)
	assert.Equal(t, wire, EncodeQualString(decoded))
}
