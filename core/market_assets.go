package core

import (
	"solirey/native/registry"
)

// MintAsset mints a standalone asset to caller, for example one that will be
// deposited into a single-asset instance.
func (m *Market) MintAsset(caller, to [20]byte) (uint64, error) {
	var id uint64
	err := m.Execute(ModuleRegistry, "Mint", func() error {
		var err error
		id, err = m.registry.Mint(caller, to)
		return err
	})
	return id, err
}

// TransferAsset moves an asset. Deposits into instances run their receive
// hook inside the same call.
func (m *Market) TransferAsset(operator, from, to [20]byte, assetID uint64) error {
	return m.Execute(ModuleRegistry, "Transfer", func() error {
		return m.registry.Transfer(operator, from, to, assetID, nil)
	})
}

// ApproveAsset lets spender move an asset held by caller.
func (m *Market) ApproveAsset(caller, spender [20]byte, assetID uint64) error {
	return m.Execute(ModuleRegistry, "Approve", func() error {
		return m.registry.Approve(caller, spender, assetID)
	})
}

// Asset returns the registry record for assetID.
func (m *Market) Asset(assetID uint64) (*registry.Asset, error) {
	var out *registry.Asset
	err := m.view(func() error {
		var err error
		out, err = m.registry.Asset(assetID)
		return err
	})
	return out, err
}
