// Package media implements call.MediaEngine on top of pion/webrtc.
//
// Each session is one RTCPeerConnection carrying a sendrecv Opus audio
// transceiver and a data channel labelled "data". The offering side creates
// the data channel; the answering side binds to it when it arrives.
//
// Session descriptions are exchanged in one shot over the signaling socket,
// so CreateOffer and CreateAnswer wait for ICE gathering to complete and
// return SDP that already contains every local candidate.
package media
