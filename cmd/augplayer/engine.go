package main

import (
	"github.com/augmedia/augplayer/internal/gst"
	"github.com/augmedia/augplayer/internal/player"
)

// playbinEngine adapts a gst.Playbin to the player.Engine interface.
type playbinEngine struct {
	*gst.Playbin
}

var _ player.Engine = playbinEngine{}

var pipelineStates = map[player.PipelineState]gst.State{
	player.PipelineNull:    gst.StateNull,
	player.PipelineReady:   gst.StateReady,
	player.PipelinePaused:  gst.StatePaused,
	player.PipelinePlaying: gst.StatePlaying,
}

func (e playbinEngine) SetState(s player.PipelineState) error {
	return e.Playbin.SetState(pipelineStates[s])
}

func toPlayerState(s gst.State) player.PipelineState {
	switch s {
	case gst.StateReady:
		return player.PipelineReady
	case gst.StatePaused:
		return player.PipelinePaused
	case gst.StatePlaying:
		return player.PipelinePlaying
	}
	return player.PipelineNull
}

var messageKinds = map[gst.MessageKind]player.MessageKind{
	gst.MessageError:           player.MessageError,
	gst.MessageEOS:             player.MessageEOS,
	gst.MessageDurationChanged: player.MessageDurationChanged,
	gst.MessageStateChanged:    player.MessageStateChanged,
}

func toPlayerMessage(msg gst.Message) player.Message {
	return player.Message{
		Kind:         messageKinds[msg.Kind],
		FromPipeline: msg.Source == gst.PlaybinName,
		State:        toPlayerState(msg.State),
		Err:          msg.Err,
	}
}
