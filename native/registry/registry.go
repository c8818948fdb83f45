// Package registry keeps the authoritative record of every unique asset: who
// holds it and who created it.
package registry

import (
	"errors"
	"fmt"

	"solirey/core/events"
	markerrors "solirey/core/errors"
	"solirey/core/types"
)

var (
	errNilState      = errors.New("registry: state not configured")
	errZeroRecipient = errors.New("registry: transfer to the zero address")
)

type registryState interface {
	AssetGet(id uint64) (*Asset, bool, error)
	AssetPut(*Asset) error
	AssetDelete(id uint64) error
	AssetSequence() (uint64, error)
	SetAssetSequence(uint64) error
}

// Registry mints and moves assets. Receivers registered for an address are
// notified synchronously once the holder has been updated.
type Registry struct {
	state     registryState
	emitter   events.Emitter
	receivers map[[20]byte]Receiver
	resolver  func([20]byte) (Receiver, bool)
}

// NewRegistry creates a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{
		emitter:   events.NoopEmitter{},
		receivers: make(map[[20]byte]Receiver),
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// RegisterReceiver installs the deposit hook for addr. A nil receiver removes
// the hook.
func (r *Registry) RegisterReceiver(addr [20]byte, receiver Receiver) {
	if receiver == nil {
		delete(r.receivers, addr)
		return
	}
	r.receivers[addr] = receiver
}

// SetResolver installs a fallback lookup for addresses without a registered
// receiver. It lets hosts attach receivers lazily, for example instances
// deployed in an earlier process.
func (r *Registry) SetResolver(resolve func([20]byte) (Receiver, bool)) { r.resolver = resolve }

func (r *Registry) receiverFor(addr [20]byte) (Receiver, bool) {
	if receiver, ok := r.receivers[addr]; ok {
		return receiver, true
	}
	if r.resolver == nil {
		return nil, false
	}
	return r.resolver(addr)
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(events.Wrap(evt))
}

func (r *Registry) load(id uint64) (*Asset, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	asset, ok, err := r.state.AssetGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: asset %d", markerrors.ErrNotFound, id)
	}
	return asset, nil
}

// Asset returns a copy of the asset record.
func (r *Registry) Asset(id uint64) (*Asset, error) {
	asset, err := r.load(id)
	if err != nil {
		return nil, err
	}
	return asset.Clone(), nil
}

// OwnerOf returns the current holder of the asset.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	asset, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return asset.Holder, nil
}

// OriginalCreatorOf returns the address that minted the asset.
func (r *Registry) OriginalCreatorOf(id uint64) ([20]byte, error) {
	asset, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return asset.Creator, nil
}

// Mint creates a new asset held by to and attributed to operator.
func (r *Registry) Mint(operator, to [20]byte) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	if to == ([20]byte{}) {
		return 0, errZeroRecipient
	}
	last, err := r.state.AssetSequence()
	if err != nil {
		return 0, err
	}
	asset := &Asset{ID: last + 1, Holder: to, Creator: operator}
	if err := r.state.SetAssetSequence(asset.ID); err != nil {
		return 0, err
	}
	if err := r.state.AssetPut(asset); err != nil {
		return 0, err
	}
	if receiver, ok := r.receiverFor(to); ok {
		if err := receiver.OnAssetReceived(operator, [20]byte{}, asset.ID, nil); err != nil {
			if rbErr := r.rollbackMint(asset.ID, last); rbErr != nil {
				return 0, errors.Join(err, rbErr)
			}
			return 0, err
		}
	}
	r.emit(NewMintedEvent(asset))
	return asset.ID, nil
}

func (r *Registry) rollbackMint(id, sequence uint64) error {
	if err := r.state.AssetDelete(id); err != nil {
		return err
	}
	return r.state.SetAssetSequence(sequence)
}

// Approve lets spender move the asset once on behalf of its holder.
func (r *Registry) Approve(caller, spender [20]byte, id uint64) error {
	asset, err := r.load(id)
	if err != nil {
		return err
	}
	if asset.Holder != caller {
		return markerrors.ErrNotOwnerOrApproved
	}
	asset.Approved = spender
	return r.state.AssetPut(asset)
}

// Transfer moves the asset from its holder to a new address. The operator must
// be the holder or the approved spender. Approval is cleared by the move.
func (r *Registry) Transfer(operator, from, to [20]byte, id uint64, data []byte) error {
	asset, err := r.load(id)
	if err != nil {
		return err
	}
	if asset.Holder != from {
		return markerrors.ErrNotOwnerOrApproved
	}
	if operator != asset.Holder && (asset.Approved == ([20]byte{}) || operator != asset.Approved) {
		return markerrors.ErrNotOwnerOrApproved
	}
	if to == ([20]byte{}) {
		return errZeroRecipient
	}
	previous := asset.Clone()
	asset.Holder = to
	asset.Approved = [20]byte{}
	if err := r.state.AssetPut(asset); err != nil {
		return err
	}
	if receiver, ok := r.receiverFor(to); ok {
		if err := receiver.OnAssetReceived(operator, from, id, data); err != nil {
			if rbErr := r.state.AssetPut(previous); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
	}
	r.emit(NewTransferredEvent(operator, from, asset))
	return nil
}
