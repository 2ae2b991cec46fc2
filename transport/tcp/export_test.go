package tcp

func TransportAddress(t *Transport) string {
	return t.address
}
