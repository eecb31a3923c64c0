package ledger

// EventTicketingABI is the subset of the deployed EventTicketing contract used by the gateway.
const EventTicketingABI = `[
  {
    "type": "function",
    "name": "createEvent",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "name", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "eventDate", "type": "uint256"},
      {"name": "ticketPrice", "type": "uint256"},
      {"name": "maxTickets", "type": "uint256"}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "mintTicket",
    "stateMutability": "payable",
    "inputs": [
      {"name": "eventId", "type": "uint256"},
      {"name": "attendeeName", "type": "string"}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "verifyTicket",
    "stateMutability": "view",
    "inputs": [
      {"name": "eventId", "type": "uint256"},
      {"name": "ticketId", "type": "uint256"}
    ],
    "outputs": [
      {"name": "valid", "type": "bool"},
      {"name": "owner", "type": "address"},
      {"name": "attendeeName", "type": "string"},
      {"name": "isUsed", "type": "bool"}
    ]
  },
  {
    "type": "function",
    "name": "markTicketUsed",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "eventId", "type": "uint256"},
      {"name": "ticketId", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getEvent",
    "stateMutability": "view",
    "inputs": [{"name": "eventId", "type": "uint256"}],
    "outputs": [
      {"name": "name", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "eventDate", "type": "uint256"},
      {"name": "ticketPrice", "type": "uint256"},
      {"name": "maxTickets", "type": "uint256"},
      {"name": "ticketsSold", "type": "uint256"},
      {"name": "organizer", "type": "address"}
    ]
  },
  {
    "type": "function",
    "name": "getTicket",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [
      {"name": "eventId", "type": "uint256"},
      {"name": "owner", "type": "address"},
      {"name": "attendeeName", "type": "string"},
      {"name": "isUsed", "type": "bool"}
    ]
  },
  {
    "type": "function",
    "name": "eventCount",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "totalSupply",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "EventCreated",
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "eventId", "type": "uint256"},
      {"indexed": false, "name": "name", "type": "string"},
      {"indexed": true, "name": "organizer", "type": "address"}
    ]
  },
  {
    "type": "event",
    "name": "TicketMinted",
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "eventId", "type": "uint256"},
      {"indexed": true, "name": "tokenId", "type": "uint256"},
      {"indexed": true, "name": "owner", "type": "address"},
      {"indexed": false, "name": "attendeeName", "type": "string"}
    ]
  },
  {
    "type": "event",
    "name": "TicketVerified",
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "eventId", "type": "uint256"},
      {"indexed": true, "name": "tokenId", "type": "uint256"},
      {"indexed": true, "name": "verifier", "type": "address"}
    ]
  },
  {
    "type": "event",
    "name": "TicketUsed",
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "eventId", "type": "uint256"},
      {"indexed": true, "name": "tokenId", "type": "uint256"}
    ]
  }
]`
