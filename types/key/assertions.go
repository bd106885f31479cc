package key

// NODE

var (
	_ publicKey = NodePublic{}

	_ privateKey[NodePublic] = NodePrivate{}

	// We need this to send keys over the wire via JSON
	_ canTextMarshal = &NodePublic{}

	// We need this to persist node keys to disk.
	_ canTextMarshal = &NodePrivate{}

	_ agreesWith[NodePublic, SharedSecret] = NodePrivate{}
)

// SHARED

var (
	_ sharedKey = SharedSecret{}
)
