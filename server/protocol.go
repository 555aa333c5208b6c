package server

import "github.com/dermesser/zkmux/proto"

// Payloads of outbound frames. The connection's writer adds the length prefix.

// Notifications carry no transaction, so their zxid is -1.
const notificationZxid int64 = -1

func replyPayload(xid int32, zxid int64, code proto.ErrCode, rsp proto.Response) []byte {
	var payload []byte
	payload = proto.AppendReplyHeader(payload, proto.ReplyHeader{Xid: xid, Zxid: zxid, Err: code})
	if code == proto.ErrCodeOk && rsp != nil {
		payload = proto.AppendResponse(payload, rsp)
	}
	return payload
}

func eventPayload(ev proto.WatchedEvent) []byte {
	payload := proto.AppendReplyHeader(nil, proto.ReplyHeader{Xid: proto.XidWatchEvent, Zxid: notificationZxid})
	return proto.AppendWatchedEvent(payload, ev)
}

// The handshake reply has no reply header.
func handshakePayload(rsp *proto.ConnectResponse) []byte {
	return proto.AppendResponse(nil, rsp)
}

// The last frame of a closed session is empty.
func closingPayload() []byte {
	return []byte{}
}
