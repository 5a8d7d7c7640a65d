package bridgeabi

//nolint:golint
import (
	_ "embed"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-relayer/contract/abi"
)

//go:embed bridge.json
var bridgeJSONABI string

const (
	MessageSent   = "event MessageSent(bytes32 indexed messageId, uint256 indexed destChainId, address indexed sender, address target, bytes payload)"
	TokensBridged = "event TokensBridged(bytes32 indexed transferId, uint256 indexed destChainId, address indexed token, address sender, address recipient, uint256 amount)"

	ReceiveMessageMethod = "receiveMessage"
	ReleaseTokensMethod  = "releaseTokens"
	IsProcessedMethod    = "isProcessed"
	PendingCountMethod   = "pendingCount"
)

var (
	BridgeABI = abi.MustReadABI(bridgeJSONABI)

	MessageSentEventSignature   = BridgeABI.Events["MessageSent"].ID
	TokensBridgedEventSignature = BridgeABI.Events["TokensBridged"].ID
)

// RelayEventSignatures is the topic0 filter used when scanning source chains.
func RelayEventSignatures() []common.Hash {
	return []common.Hash{MessageSentEventSignature, TokensBridgedEventSignature}
}
