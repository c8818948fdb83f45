package registry

// Asset is a unique asset tracked by the registry. Creator is fixed at mint
// time and drives royalty attribution on every later sale.
type Asset struct {
	ID       uint64
	Holder   [20]byte
	Creator  [20]byte
	Approved [20]byte
}

// Clone returns a copy of the asset.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Receiver is implemented by addresses that run code when an asset is moved
// to them. Returning an error rejects the deposit and rolls it back.
type Receiver interface {
	OnAssetReceived(operator, from [20]byte, assetID uint64, data []byte) error
}
