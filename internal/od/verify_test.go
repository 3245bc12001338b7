package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	v := NewVerifier(nil, 0)

	got := v.Verify("HACKATHON 2024 CERTIFICATE", "Hackathon")
	assert.True(t, got.Verified)
	assert.Equal(t, "technical", got.Category)
	assert.Equal(t, "Activity name found in document", got.Message)

	got = v.Verify("Inter college football tournament, team captain", "Sports Day")
	assert.True(t, got.Verified)
	assert.Equal(t, "sports", got.Category)
	assert.Equal(t, "Valid Sports activity detected", got.Message)

	got = v.Verify("this is a good day", "Hackathon")
	assert.False(t, got.Verified)
	assert.Empty(t, got.Category)

	got = v.Verify("Robotics Challenge 2024", "robotics challenge")
	assert.True(t, got.Verified)
	assert.Equal(t, "Activity name found in document", got.Message)
}

func TestVerifyNeedsMinimumScore(t *testing.T) {
	v := NewVerifier(nil, 0)

	got := v.Verify("Department of Physics lab record", "Hackathon")
	assert.False(t, got.Verified)
	assert.Equal(t, "Insufficient evidence of valid extracurricular activity", got.Message)
	assert.Empty(t, got.Category)

	got = v.Verify("Certificate issued by the department head", "Hackathon")
	assert.True(t, got.Verified)
	assert.Equal(t, "Valid General activity detected", got.Message)

	got = v.Verify("certificate certificate certificate", "Hackathon")
	assert.False(t, got.Verified, "repeated keyword counts once")
}

func TestVerifyWithConfiguredKeywords(t *testing.T) {
	v := NewVerifier([]string{" Marathon ", "finisher"}, 2)
	got := v.Verify("City marathon finisher", "Run")
	assert.True(t, got.Verified)
	assert.Equal(t, "Activity keywords found in document", got.Message)
	assert.False(t, v.Verify("City marathon", "Run").Verified)
	assert.False(t, v.Verify("Hackathon participation", "Run").Verified)
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("granted on duty today", "on duty"))
	assert.True(t, containsWord("od", "od"))
	assert.False(t, containsWord("good food", "od"))
	assert.True(t, containsWord("goodod od.", "od"))
}
